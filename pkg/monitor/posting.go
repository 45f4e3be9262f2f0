package monitor

import (
	"github.com/bcaldwell/monzobridge/pkg/monetr"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
)

// UnknownName is used when a transaction has neither a merchant nor a description.
const UnknownName = "Unknown"

// DisplayName picks the merchant name, then the description, then UnknownName.
func DisplayName(tx monzo.Transaction) string {
	if name := tx.MerchantName(); name != "" {
		return name
	}
	if tx.Description != "" {
		return tx.Description
	}
	return UnknownName
}

// ToPosting maps a bank transaction to the monetr posting. Sign inversion and conversion to
// cents happen in the monetr client.
func ToPosting(tx monzo.Transaction) monetr.Posting {
	return monetr.Posting{
		Amount:    tx.Decimal(),
		Name:      DisplayName(tx),
		Date:      tx.Created,
		IsPending: !bool(tx.Settled),
	}
}
