package setup

import (
	"context"
	"fmt"
	"strings"

	"github.com/bcaldwell/monzobridge/pkg/monzo"
	"github.com/google/uuid"
	"k8s.io/klog"
)

// Authorizer is the part of the OAuth session the authorization flow drives.
type Authorizer interface {
	HasAccessToken() bool
	AuthCodeURL(state string) string
	ExchangeStoredCode(ctx context.Context) error
}

// AccountLister is used to check that the user approved access in the Monzo app.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]monzo.Account, error)
}

type authState int

const (
	authNoToken authState = iota
	authAwaitingCallback
	authAwaitingApproval
	authMonitoring
)

func (s authState) String() string {
	switch s {
	case authNoToken:
		return "NoToken"
	case authAwaitingCallback:
		return "AwaitingCallback"
	case authAwaitingApproval:
		return "AwaitingApproval"
	case authMonitoring:
		return "Monitoring"
	}
	return fmt.Sprintf("authState(%d)", int(s))
}

const approvalHelp = `Monzo requires every new connection to be approved in the Monzo app.
Open the app, approve the notification and then answer "yes".
Answer "no" if you have not approved it yet or "exit" to stop.`

// Authorize takes the session from no token to one that can read accounts. A session that
// already holds an access token goes straight to monitoring.
func (s *Setup) Authorize(ctx context.Context, session Authorizer, accounts AccountLister) error {
	state := authNoToken
	if session.HasAccessToken() {
		state = authMonitoring
	}

	for {
		klog.V(2).Infof("Authorization state %s", state)

		switch state {
		case authNoToken:
			s.prompt.Println("\n=== Monzo Authorization ===")
			if _, err := s.prompt.Ask("Press Enter to open the Monzo authorization page", ""); err != nil {
				return err
			}
			state = authAwaitingCallback

		case authAwaitingCallback:
			if err := s.awaitCallback(ctx, session); err != nil {
				return err
			}
			if err := session.ExchangeStoredCode(ctx); err != nil {
				return err
			}
			s.prompt.Println("Received access token")
			state = authAwaitingApproval

		case authAwaitingApproval:
			next, err := s.awaitApproval(ctx, accounts)
			if err != nil {
				return err
			}
			state = next

		case authMonitoring:
			return nil
		}
	}
}

func (s *Setup) awaitCallback(ctx context.Context, session Authorizer) error {
	state := uuid.NewString()

	// bind before the browser opens so a fast redirect cannot be missed
	listener, err := monzo.ListenCallback(s.cfg.Monzo.RedirectURI, state, s.store)
	if err != nil {
		return err
	}
	defer listener.Close()

	authURL := session.AuthCodeURL(state)
	s.prompt.Println("Opening", authURL)
	if err := s.openBrowser(authURL); err != nil {
		klog.Warningf("Failed to open browser: %v", err)
		s.prompt.Println("Open the URL above in your browser to continue")
	}

	s.prompt.Println("Waiting for the authorization callback on", listener.Addr())
	if err := listener.Await(ctx); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	return nil
}

func (s *Setup) awaitApproval(ctx context.Context, accounts AccountLister) (authState, error) {
	answer, err := s.prompt.Ask("Have you approved access in the Monzo app? (yes/no/exit)", "")
	if err != nil {
		return authAwaitingApproval, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes":
		found, err := accounts.ListAccounts(ctx)
		if err != nil {
			s.prompt.Println("Could not list accounts, approval may still be pending:", err)
			return authAwaitingApproval, nil
		}
		s.prompt.Println(fmt.Sprintf("Access approved, found %d accounts", len(found)))
		return authMonitoring, nil
	case "no":
		s.prompt.Println("Approve the connection in the Monzo app, then answer yes")
		return authAwaitingApproval, nil
	case "exit":
		return authAwaitingApproval, ErrAborted
	default:
		s.prompt.Println(approvalHelp)
		return authAwaitingApproval, nil
	}
}
