package influxutils

import (
	"fmt"
	"strings"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/config"
	"github.com/bcaldwell/monzobridge/pkg/monetr"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
	influxdb "github.com/influxdata/influxdb/client/v2"
)

func CreateInfluxClient(secrets config.InfluxSecrets) (influxdb.Client, error) {
	return influxdb.NewHTTPClient(influxdb.HTTPConfig{
		Addr:     secrets.InfluxEndpoint,
		Username: secrets.InfluxUsername,
		Password: secrets.InfluxPassword,
		Timeout:  10 * time.Second,
	})
}

func CreateDatabase(influxClient influxdb.Client, name string) error {
	name = strings.Split(name, " ")[0]

	createCommand := fmt.Sprintf("CREATE DATABASE %s", name)

	q := influxdb.NewQuery(createCommand, "", "")
	response, err := influxClient.Query(q)
	if err != nil {
		return err
	}
	return response.Error()
}

// Recorder writes one point per forwarded transaction.
type Recorder struct {
	client      influxdb.Client
	database    string
	measurement string
}

func NewRecorder(client influxdb.Client, cfg config.InfluxConfig) *Recorder {
	return &Recorder{
		client:      client,
		database:    cfg.Database,
		measurement: cfg.Measurement,
	}
}

func (r *Recorder) Record(account monzo.Account, tx monzo.Transaction, posting monetr.Posting) error {
	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:  r.database,
		Precision: "s",
	})
	if err != nil {
		return err
	}

	category := tx.Category
	if tx.Merchant != nil && tx.Merchant.Category != "" {
		category = tx.Merchant.Category
	}

	tags := map[string]string{
		"account":  account.ID,
		"currency": tx.Currency,
	}
	if category != "" {
		tags["category"] = category
	}

	amount, _ := posting.Amount.Float64()
	fields := map[string]interface{}{
		"transaction_id": tx.ID,
		"name":           posting.Name,
		"amount":         amount,
		"monetr_amount":  monetr.MinorUnits(posting.Amount),
		"pending":        posting.IsPending,
	}

	pt, err := influxdb.NewPoint(r.measurement, tags, fields, tx.Created)
	if err != nil {
		return err
	}
	bp.AddPoint(pt)

	return r.client.Write(bp)
}

func (r *Recorder) Close() error {
	return r.client.Close()
}
