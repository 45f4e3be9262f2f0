package influxutils

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/config"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
	"github.com/bcaldwell/monzobridge/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderWritesPoint(t *testing.T) {
	var db, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/write" {
			db = r.URL.Query().Get("db")
			raw, _ := io.ReadAll(r.Body)
			body = string(raw)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := CreateInfluxClient(config.InfluxSecrets{InfluxEndpoint: srv.URL})
	require.NoError(t, err)

	r := NewRecorder(client, config.InfluxConfig{Database: "bridge", Measurement: "forwarded_transactions"})
	defer r.Close()

	tx := monzo.Transaction{
		ID:       "tx2",
		Amount:   1200,
		Currency: "GBP",
		Merchant: &monzo.Merchant{Name: "Cafe", Category: "eating_out"},
		Created:  time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC),
	}
	require.NoError(t, r.Record(monzo.Account{ID: "acc_joint"}, tx, monitor.ToPosting(tx)))

	assert.Equal(t, "bridge", db)
	assert.Contains(t, body, "forwarded_transactions,account=acc_joint,category=eating_out,currency=GBP")
	assert.Contains(t, body, "monetr_amount=-1200i")
	assert.Contains(t, body, `name="Cafe"`)
	assert.Contains(t, body, "pending=true")
	assert.Contains(t, body, "1704108600")
}
