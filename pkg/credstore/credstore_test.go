package credstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	keyring.MockInit()
	return New(OSKeyring(), "test_monetr", "test_monzo")
}

func TestMonetrRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.LoadMonetr()
	assert.False(t, ok)

	in := &MonetrCredentials{
		URL:           "http://localhost:4000",
		Email:         "me@example.com",
		Password:      "hunter2",
		BankAccountID: "bac_01",
	}
	require.NoError(t, s.SaveMonetr(in))

	out, ok := s.LoadMonetr()
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestBlobIsBase64JSON(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveMonzo(&MonzoCredentials{ClientID: "id", ClientSecret: "secret"}))

	raw, err := keyring.Get("test_monzo", "config")
	require.NoError(t, err)
	// base64 of `{"client_id":"id",...`
	assert.Contains(t, raw, "eyJjbGllbnRfaWQiOiJpZCIs")
}

func TestLoadSwallowsCorruption(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, keyring.Set("test_monzo", "config", "%%% not base64"))
	_, ok := s.LoadMonzo()
	assert.False(t, ok)

	// valid base64, invalid json
	require.NoError(t, keyring.Set("test_monzo", "config", "bm90IGpzb24="))
	_, ok = s.LoadMonzo()
	assert.False(t, ok)
}

func TestMonzoTokens(t *testing.T) {
	s := newTestStore(t)

	creds := &MonzoCredentials{ClientID: "id", ClientSecret: "secret"}
	assert.False(t, creds.HasAccessToken())

	expiry := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	creds.SetTokens(Tokens{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry})
	require.NoError(t, s.SaveMonzo(creds))

	loaded, ok := s.LoadMonzo()
	require.True(t, ok)
	assert.True(t, loaded.HasAccessToken())
	assert.Equal(t, Tokens{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry}, loaded.Tokens())

	// a refresh response without a new refresh token keeps the old one
	loaded.SetTokens(Tokens{AccessToken: "access2"})
	assert.Equal(t, "access2", *loaded.AccessToken)
	assert.Equal(t, "refresh", *loaded.RefreshToken)
	assert.Nil(t, loaded.Expiry)

	loaded.ClearTokens()
	assert.False(t, loaded.HasAccessToken())
	assert.Nil(t, loaded.RefreshToken)
}

func TestAuthCodeIsOneShot(t *testing.T) {
	s := newTestStore(t)

	code, err := s.AuthCode()
	require.NoError(t, err)
	assert.Empty(t, code)

	require.NoError(t, s.SaveAuthCode("abc"))
	code, err = s.AuthCode()
	require.NoError(t, err)
	assert.Equal(t, "abc", code)

	require.NoError(t, s.DeleteAuthCode())
	// deleting twice is fine
	require.NoError(t, s.DeleteAuthCode())

	code, err = s.AuthCode()
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestMonetrNormalize(t *testing.T) {
	c := &MonetrCredentials{URL: " http://localhost:4000/ ", Email: " me@example.com", BankAccountID: "bac_1 "}
	c.Normalize()
	assert.Equal(t, "http://localhost:4000", c.URL)
	assert.Equal(t, "me@example.com", c.Email)
	assert.Equal(t, "bac_1", c.BankAccountID)
	assert.False(t, c.Complete())

	c.Password = "pw"
	assert.True(t, c.Complete())
}
