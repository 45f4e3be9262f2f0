package monzo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog"
)

const (
	accountsPath     = "/accounts"
	transactionsPath = "/transactions"
)

// TokenSource hands out the current access token and renews it when the API rejects it.
type TokenSource interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

// Client is a thin wrapper over the Monzo accounts and transactions endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	tokens     TokenSource
}

func NewClient(baseURL string, pageSize int, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		tokens:   tokens,
	}
}

// ListAccounts returns every account visible to the token. Errors are returned to the caller.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, "list accounts", accountsPath, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// Transactions fetches the transactions of an account created after since, newest first.
// A zero since fetches the first page without a lower bound.
func (c *Client) Transactions(ctx context.Context, accountID string, since time.Time) ([]Transaction, error) {
	query := url.Values{}
	query.Set("account_id", accountID)
	query.Set("expand[]", "merchant")
	query.Set("limit", strconv.Itoa(c.pageSize))
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var resp transactionsResponse
	if err := c.get(ctx, "list transactions", transactionsPath, query, &resp); err != nil {
		return nil, err
	}

	transactions := resp.Transactions
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Created.After(transactions[j].Created)
	})
	return transactions, nil
}

// ListTransactions is Transactions for the polling loop: a failed fetch is logged and
// reported as no transactions so the next cycle can try again.
func (c *Client) ListTransactions(ctx context.Context, accountID string, since time.Time) []Transaction {
	transactions, err := c.Transactions(ctx, accountID, since)
	if err != nil {
		klog.Warningf("Error getting transactions for %s: %v", accountID, err)
		return []Transaction{}
	}
	return transactions
}

// RefreshToken exchanges the stored refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.tokens.Refresh(ctx)
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	err := c.do(ctx, op, path, query, out)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		klog.Infof("Monzo rejected the access token, refreshing")
		if refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
			return fmt.Errorf("%w (token refresh failed: %v)", err, refreshErr)
		}
		return c.do(ctx, op, path, query, out)
	}

	return err
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
