package credstore

import (
	"strings"
	"time"
)

type MonetrCredentials struct {
	URL           string `json:"monetr_url"`
	Email         string `json:"monetr_email"`
	Password      string `json:"monetr_password"`
	BankAccountID string `json:"bank_account_id"`
}

// Complete reports whether every field needed to talk to monetr is set.
func (c *MonetrCredentials) Complete() bool {
	return c != nil && c.URL != "" && c.Email != "" && c.Password != "" && c.BankAccountID != ""
}

// Normalize trims whitespace and the trailing slash from the URL.
func (c *MonetrCredentials) Normalize() {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	c.Email = strings.TrimSpace(c.Email)
	c.BankAccountID = strings.TrimSpace(c.BankAccountID)
}

type MonzoCredentials struct {
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	AccessToken  *string    `json:"access_token"`
	RefreshToken *string    `json:"refresh_token"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

func (c *MonzoCredentials) SetTokens(t Tokens) {
	access := t.AccessToken
	c.AccessToken = &access

	// the provider may omit a new refresh token, keep the old one then
	if t.RefreshToken != "" {
		refresh := t.RefreshToken
		c.RefreshToken = &refresh
	}

	if t.Expiry.IsZero() {
		c.Expiry = nil
	} else {
		expiry := t.Expiry.UTC()
		c.Expiry = &expiry
	}
}

func (c *MonzoCredentials) ClearTokens() {
	c.AccessToken = nil
	c.RefreshToken = nil
	c.Expiry = nil
}

func (c *MonzoCredentials) Tokens() Tokens {
	t := Tokens{}
	if c.AccessToken != nil {
		t.AccessToken = *c.AccessToken
	}
	if c.RefreshToken != nil {
		t.RefreshToken = *c.RefreshToken
	}
	if c.Expiry != nil {
		t.Expiry = *c.Expiry
	}
	return t
}

func (c *MonzoCredentials) HasAccessToken() bool {
	return c != nil && c.AccessToken != nil && *c.AccessToken != ""
}
