package monetr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/credstore"
	"github.com/shopspring/decimal"
	"k8s.io/klog"
)

const (
	loginPath = "/api/authentication/login"
	// DateFormat is the fixed millisecond precision UTC layout monetr expects
	DateFormat = "2006-01-02T15:04:05.000Z"
)

var minorUnitsPerMajor = decimal.NewFromInt(100)

// Posting is a transaction about to be written to the monetr ledger. Amount uses the bank's
// sign convention (negative is money leaving the account).
type Posting struct {
	Amount    decimal.Decimal
	Name      string
	Date      time.Time
	IsPending bool
}

type transactionRequest struct {
	BankAccountID  string  `json:"bankAccountId"`
	Amount         int64   `json:"amount"`
	Name           string  `json:"name"`
	MerchantName   string  `json:"merchantName"`
	Date           string  `json:"date"`
	IsPending      bool    `json:"isPending"`
	SpendingID     *string `json:"spendingId"`
	AdjustsBalance bool    `json:"adjustsBalance"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StatusError is returned for unexpected monetr responses and keeps the body for diagnosis.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to a monetr instance with a cookie session.
type Client struct {
	httpClient *http.Client
	creds      *credstore.MonetrCredentials
	loggedIn   bool
}

func NewClient(creds *credstore.MonetrCredentials, timeout time.Duration) *Client {
	// cookiejar.New only fails with a non nil PublicSuffixList
	jar, _ := cookiejar.New(nil)

	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		creds: creds,
	}
}

// Login authenticates with email and password and keeps the returned session cookie.
func (c *Client) Login(ctx context.Context) error {
	klog.V(1).Infof("Logging in to monetr at %s", c.creds.URL)

	_, err := c.postJSON(ctx, "monetr login", loginPath, loginRequest{
		Email:    c.creds.Email,
		Password: c.creds.Password,
	})
	if err != nil {
		c.loggedIn = false
		return err
	}

	c.loggedIn = true
	klog.Infof("Logged in to monetr")
	return nil
}

// PostTransaction creates a transaction in the configured bank account, logging in first when
// there is no session yet. Every call creates a new ledger entry.
func (c *Client) PostTransaction(ctx context.Context, p Posting) error {
	if !c.loggedIn {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	body := transactionRequest{
		BankAccountID:  c.creds.BankAccountID,
		Amount:         MinorUnits(p.Amount),
		Name:           p.Name,
		MerchantName:   p.Name,
		Date:           p.Date.UTC().Format(DateFormat),
		IsPending:      p.IsPending,
		SpendingID:     nil,
		AdjustsBalance: true,
	}

	_, err := c.postJSON(ctx, "post transaction", c.transactionsPath(), body)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		klog.Infof("monetr session rejected, logging in again")
		if loginErr := c.Login(ctx); loginErr != nil {
			return loginErr
		}
		_, err = c.postJSON(ctx, "post transaction", c.transactionsPath(), body)
	}
	if err != nil {
		return err
	}

	klog.Infof("Posted transaction %s for %s", p.Name, p.Amount.Abs().StringFixed(2))
	return nil
}

// MinorUnits converts a bank amount to monetr's integer cents. monetr counts debits as
// positive, so the sign is inverted.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Neg().Mul(minorUnitsPerMajor).Round(0).IntPart()
}

func (c *Client) transactionsPath() string {
	return fmt.Sprintf("/api/bank_accounts/%s/transactions", c.creds.BankAccountID)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.URL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
