package monzo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// minorUnitExponent is the exponent of a GBP/USD minor unit (pence, cents)
const minorUnitExponent = -2

type Account struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Currency    string    `json:"currency"`
	Closed      bool      `json:"closed"`
	Created     time.Time `json:"created"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type Transaction struct {
	ID string `json:"id"`
	// Amount is in minor units, negative for money leaving the account
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Created     time.Time `json:"created"`
	Settled     Settled   `json:"settled"`
	Merchant    *Merchant `json:"merchant"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Notes       string    `json:"notes"`
}

// Decimal returns the amount in major currency units.
func (t Transaction) Decimal() decimal.Decimal {
	return decimal.New(t.Amount, minorUnitExponent)
}

// MerchantName returns the expanded merchant name, or "" without one.
func (t Transaction) MerchantName() string {
	if t.Merchant == nil {
		return ""
	}
	return t.Merchant.Name
}

type Merchant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Emoji    string `json:"emoji"`
	Logo     string `json:"logo"`
}

// UnmarshalJSON accepts the expanded merchant object as well as the bare merchant id the
// API returns when expansion wasn't applied.
func (m *Merchant) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*m = Merchant{ID: id}
		return nil
	}

	type merchant Merchant
	var full merchant
	if err := json.Unmarshal(b, &full); err != nil {
		return fmt.Errorf("invalid merchant: %w", err)
	}
	*m = Merchant(full)
	return nil
}

// Settled is true once the transaction has settled. The API sends the settlement time, an
// empty string while pending, and some fixtures use a plain boolean.
type Settled bool

func (s *Settled) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case nil:
		*s = false
	case bool:
		*s = Settled(value)
	case string:
		*s = value != ""
	default:
		return fmt.Errorf("invalid settled value %s", string(b))
	}
	return nil
}

// StatusError is returned for non 2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}
