package config

import "time"

type Config struct {
	Monzo   MonzoConfig   `json:"monzo"`
	Monitor MonitorConfig `json:"monitor"`
	Keyring KeyringConfig `json:"keyring"`
	Influx  InfluxConfig  `json:"influx"`
}

type Secrets struct {
	Monetr MonetrSecrets `json:"monetr"`
	Monzo  MonzoSecrets  `json:"monzo"`
	Influx InfluxSecrets `json:"influx"`
	SQL    SqlSecrets    `json:"sql"`

	// Altternative to the SQL struct, designed to be used with a hosted postgres env variable
	DatabaseURL string `json:"databaseUrl" env:"DATABASE_URL"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Monzo
///////////////////////////////////////////////////////////////////////////////////////

type MonzoConfig struct {
	AuthURL     string `json:"authURL"`
	APIURL      string `json:"apiURL"`
	RedirectURI string `json:"redirectURI"`
	// only accounts of this type are monitored
	AccountType string   `json:"accountType"`
	PageSize    int      `json:"pageSize"`
	Timeout     Duration `json:"timeout"`
}

type MonzoSecrets struct {
	ClientID     string `json:"clientId" env:"MONZO_CLIENT_ID"`
	ClientSecret string `json:"clientSecret" env:"MONZO_CLIENT_SECRET"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Monetr
///////////////////////////////////////////////////////////////////////////////////////

type MonetrSecrets struct {
	URL           string `json:"url" env:"MONETR_URL"`
	Email         string `json:"email" env:"MONETR_EMAIL"`
	Password      string `json:"password" env:"MONETR_PASSWORD"`
	BankAccountID string `json:"bankAccountId" env:"MONETR_BANK_ACCOUNT_ID"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Monitor
///////////////////////////////////////////////////////////////////////////////////////

type MonitorConfig struct {
	// cron spec, robfig/cron syntax
	UpdateFrequency string   `json:"updateFrequency"`
	Lookback        Duration `json:"lookback"`
	SQL             struct {
		Database  string `json:"database"`
		SeenTable string `json:"seenTable"`
	} `json:"sql"`
}

type KeyringConfig struct {
	MonetrService string `json:"monetrService"`
	MonzoService  string `json:"monzoService"`
}

type InfluxConfig struct {
	Database    string `json:"database"`
	Measurement string `json:"measurement"`
}

type InfluxSecrets struct {
	InfluxEndpoint string `json:"influxEndpoint" env:"INFLUX_ENDPOINT"`
	InfluxUsername string `json:"influxUsername" env:"INFLUX_USERNAME"`
	InfluxPassword string `json:"influxPassword" env:"INFLUX_PASSWORD"`
}

type SqlSecrets struct {
	SqlHost     string `json:"sqlHost" env:"SQL_HOST"`
	SqlUsername string `json:"sqlUsername" env:"SQL_USERNAME"`
	SqlPassword string `json:"sqlPassword" env:"SQL_PASSWORD"`
}

// Duration reads "10s" style strings from yaml/json
type Duration struct {
	time.Duration
}
