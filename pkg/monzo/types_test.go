package monzo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDecoding(t *testing.T) {
	raw := `{"id":"tx1","amount":-500,"merchant":{"name":"Cafe"},"created":"2024-01-01T10:00:00.000Z","settled":true}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))

	assert.Equal(t, "tx1", tx.ID)
	assert.Equal(t, int64(-500), tx.Amount)
	assert.Equal(t, "-5", tx.Decimal().String())
	assert.Equal(t, "Cafe", tx.MerchantName())
	assert.True(t, bool(tx.Settled))
	assert.Equal(t, 10, tx.Created.Hour())
}

func TestMerchantAsID(t *testing.T) {
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"tx","merchant":"merch_0001"}`), &tx))
	require.NotNil(t, tx.Merchant)
	assert.Equal(t, "merch_0001", tx.Merchant.ID)
	assert.Empty(t, tx.MerchantName())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"tx","merchant":null}`), &tx))
	assert.Nil(t, tx.Merchant)
}

func TestSettled(t *testing.T) {
	cases := map[string]bool{
		`true`:                       true,
		`false`:                      false,
		`null`:                       false,
		`""`:                         false,
		`"2024-01-02T03:04:05.000Z"`: true,
	}

	for raw, expected := range cases {
		var s Settled
		require.NoError(t, s.UnmarshalJSON([]byte(raw)), raw)
		assert.Equal(t, expected, bool(s), raw)
	}

	var s Settled
	assert.Error(t, s.UnmarshalJSON([]byte(`12`)))
}
