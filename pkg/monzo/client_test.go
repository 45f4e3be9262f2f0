package monzo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token     string
	refreshTo string
	refreshed int
	err       error
}

func (f *fakeTokens) AccessToken() string { return f.token }

func (f *fakeTokens) Refresh(ctx context.Context) error {
	f.refreshed++
	if f.err != nil {
		return f.err
	}
	f.token = f.refreshTo
	return nil
}

func TestListAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"accounts":[{"id":"acc_1","description":"Joint","type":"us_partner"},{"id":"acc_2","type":"uk_retail"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, time.Second, &fakeTokens{token: "token"})
	accounts, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc_1", accounts[0].ID)
	assert.Equal(t, "us_partner", accounts[0].Type)
	assert.Equal(t, "Joint", accounts[0].Description)
}

func TestListAccountsPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"forbidden.insufficient_permissions"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, time.Second, &fakeTokens{token: "token"})
	_, err := c.ListAccounts(context.Background())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "insufficient_permissions")
}

func TestTransactionsQueryAndOrder(t *testing.T) {
	since := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "acc_1", q.Get("account_id"))
		assert.Equal(t, "merchant", q.Get("expand[]"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "2024-01-01T09:00:00Z", q.Get("since"))

		w.Write([]byte(`{"transactions":[
			{"id":"tx_old","amount":-100,"created":"2024-01-01T09:30:00.000Z","settled":"2024-01-02T00:00:00.000Z"},
			{"id":"tx_new","amount":250,"created":"2024-01-01T10:15:00.123Z","settled":"","merchant":{"id":"merch_1","name":"Cafe","category":"eating_out","emoji":"☕"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 25, time.Second, &fakeTokens{token: "token"})
	transactions, err := c.Transactions(context.Background(), "acc_1", since)
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	assert.Equal(t, "tx_new", transactions[0].ID)
	assert.Equal(t, "Cafe", transactions[0].MerchantName())
	assert.False(t, bool(transactions[0].Settled))
	assert.Equal(t, "tx_old", transactions[1].ID)
	assert.True(t, bool(transactions[1].Settled))
}

func TestTransactionsWithoutSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["since"]
		assert.False(t, ok)
		w.Write([]byte(`{"transactions":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, time.Second, &fakeTokens{token: "token"})
	transactions, err := c.Transactions(context.Background(), "acc_1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestListTransactionsSwallowsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, time.Second, &fakeTokens{token: "token"})
	transactions := c.ListTransactions(context.Background(), "acc_1", time.Now())
	assert.NotNil(t, transactions)
	assert.Empty(t, transactions)
}

func TestUnauthorizedRefreshesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"unauthorized.bad_access_token.expired"}`))
			return
		}
		w.Write([]byte(`{"accounts":[{"id":"acc_1","type":"us_partner"}]}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", refreshTo: "fresh"}
	c := NewClient(srv.URL, 50, time.Second, tokens)

	accounts, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, 1, tokens.refreshed)
	assert.Equal(t, 2, calls)
}

func TestUnauthorizedRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", err: ErrNoRefreshToken}
	c := NewClient(srv.URL, 50, time.Second, tokens)

	_, err := c.ListAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "no refresh token")
	assert.Equal(t, 1, tokens.refreshed)
}
