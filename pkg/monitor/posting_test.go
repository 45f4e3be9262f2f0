package monitor

import (
	"testing"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/monetr"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		tx   monzo.Transaction
		want string
	}{
		{"merchant wins", monzo.Transaction{Merchant: &monzo.Merchant{Name: "Cafe"}, Description: "CAFE LDN"}, "Cafe"},
		{"description without merchant", monzo.Transaction{Description: "CAFE LDN"}, "CAFE LDN"},
		{"merchant id only", monzo.Transaction{Merchant: &monzo.Merchant{ID: "merch_1"}, Description: "TFL"}, "TFL"},
		{"nothing", monzo.Transaction{}, UnknownName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.tx))
		})
	}
}

func TestToPosting(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tx := monzo.Transaction{
		ID:          "tx1",
		Amount:      -1234,
		Created:     created,
		Description: "Shop",
	}

	p := ToPosting(tx)
	assert.Equal(t, "-12.34", p.Amount.String())
	assert.Equal(t, "Shop", p.Name)
	assert.Equal(t, created, p.Date)
	assert.True(t, p.IsPending)
	assert.Equal(t, int64(1234), monetr.MinorUnits(p.Amount))

	tx.Settled = true
	assert.False(t, ToPosting(tx).IsPending)
}
