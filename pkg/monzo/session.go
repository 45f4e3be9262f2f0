package monzo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/config"
	"github.com/bcaldwell/monzobridge/pkg/credstore"
	"golang.org/x/oauth2"
	"k8s.io/klog"
)

const tokenPath = "/oauth2/token"

var (
	ErrNoAuthCode     = errors.New("no authorization code stored")
	ErrNoRefreshToken = errors.New("no refresh token stored")
)

// Session owns the OAuth2 tokens of the bridge and keeps the credential store in sync with them.
type Session struct {
	oauth      *oauth2.Config
	store      *credstore.Store
	httpClient *http.Client

	mu    sync.Mutex
	creds *credstore.MonzoCredentials
}

func NewSession(cfg config.MonzoConfig, store *credstore.Store, creds *credstore.MonzoCredentials) *Session {
	return &Session{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  strings.TrimRight(cfg.APIURL, "/") + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Duration,
		},
		creds: creds,
	}
}

// AuthCodeURL is the browser URL that starts the authorization code flow.
func (s *Session) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Tokens().AccessToken
}

func (s *Session) HasAccessToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.HasAccessToken()
}

// ExchangeStoredCode trades the authorization code captured by the callback for a token
// pair, persists the pair and deletes the code so it is never sent twice.
func (s *Session) ExchangeStoredCode(ctx context.Context) error {
	code, err := s.store.AuthCode()
	if err != nil {
		return err
	}
	if code == "" {
		return ErrNoAuthCode
	}

	token, err := s.oauth.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := s.saveToken(token); err != nil {
		return err
	}

	return s.store.DeleteAuthCode()
}

// Refresh exchanges the refresh token for a new token pair and persists it.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.creds.Tokens().RefreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	// an empty access token is never valid, so the source always hits the token endpoint
	token, err := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}

	klog.Infof("Refreshed Monzo access token")
	return s.saveToken(token)
}

// Reset forgets the stored tokens so the next start goes through authorization again.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds.ClearTokens()
	return s.store.SaveMonzo(s.creds)
}

func (s *Session) saveToken(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := token.Expiry
	if !expiry.IsZero() {
		expiry = expiry.Round(time.Second)
	}

	s.creds.SetTokens(credstore.Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       expiry,
	})

	if err := s.store.SaveMonzo(s.creds); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *Session) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}
