package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/Shopify/ejson"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
	"k8s.io/klog"
)

const (
	ConfigEnvVar     = "MONZOBRIDGE_CONFIG"
	EjsonKeyFileEnv  = "MONZOBRIDGE_EJSON_SECRET_KEY"
	DefaultEjsonKeys = "/opt/ejson/keys"
)

// Defaults returns the configuration used for any field left empty by the config file.
func Defaults() Config {
	return Config{
		Monzo: MonzoConfig{
			AuthURL:     "https://auth.monzo.com",
			APIURL:      "https://api.monzo.com",
			RedirectURI: "http://localhost:8080/callback",
			AccountType: "us_partner",
			PageSize:    50,
			Timeout:     Duration{30 * time.Second},
		},
		Monitor: MonitorConfig{
			UpdateFrequency: "@every 10s",
			Lookback:        Duration{time.Hour},
		},
		Keyring: KeyringConfig{
			MonetrService: "monzo_bridge_monetr",
			MonzoService:  "monzo_bridge_monzo",
		},
		Influx: InfluxConfig{
			Database:    "monzobridge",
			Measurement: "forwarded_transactions",
		},
	}
}

// ReadConfig loads the config file (or the yaml held in configEnvVar) and the secrets file.
// A missing config file is not an error, the defaults are used instead.
func ReadConfig(configEnvVar, configFile, secretsFile string) (*Config, *Secrets, error) {
	cfg, err := readConfig(configEnvVar, configFile)
	if err != nil {
		return nil, nil, err
	}

	secrets, err := readSecrets(secretsFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, secrets, nil
}

func readConfig(envName, filename string) (*Config, error) {
	var raw []byte
	var err error

	cfg := Config{}

	rawEnv := os.Getenv(envName)
	if rawEnv != "" {
		klog.Infof("Reading config from environment variable %s", envName)
		raw = []byte(rawEnv)
	} else {
		raw, err = os.ReadFile(filename)
		if errors.Is(err, os.ErrNotExist) {
			klog.Warningf("Config file %s not found, using defaults", filename)
			raw = nil
		} else if err != nil {
			return nil, err
		}
	}

	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	return &cfg, nil
}

func readSecrets(filename string) (*Secrets, error) {
	ejsonSecrets, ejsonErr := readEjsonSecrets(filename)

	envSecrets, envErr := readEnvSecrets()

	var secrets Secrets

	if ejsonErr == nil && envErr == nil {
		err := mergo.Merge(envSecrets, *ejsonSecrets)
		if err != nil {
			return nil, fmt.Errorf("failed to merge secrets: %w", err)
		}
		secrets = *envSecrets
	} else if ejsonErr != nil && envErr == nil {
		klog.V(1).Infof("Not using ejson secrets: %v", ejsonErr)
		secrets = *envSecrets
	} else if ejsonErr == nil && envErr != nil {
		klog.Warningf("Error parsing env secrets: %v", envErr)
		secrets = *ejsonSecrets
	} else {
		return nil, fmt.Errorf("failed to parse secrets. Ejson error: %v. Env error: %v", ejsonErr, envErr)
	}

	return &secrets, nil
}

func readEjsonSecrets(filename string) (*Secrets, error) {
	ejsonSecrets := Secrets{}
	ejsonKeyFile := os.Getenv(EjsonKeyFileEnv)
	ejsonKey := []byte{}
	var err error

	if ejsonKeyFile != "" {
		ejsonKey, err = os.ReadFile(ejsonKeyFile)
		if err != nil {
			return nil, err
		}
	}
	raw, err := ejson.DecryptFile(filename, DefaultEjsonKeys, string(ejsonKey))
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(raw, &ejsonSecrets)
	return &ejsonSecrets, err
}

func readEnvSecrets() (*Secrets, error) {
	envSecrets := Secrets{}
	err := env.Parse(&envSecrets)
	return &envSecrets, err
}

// HasSQL reports whether enough database secrets are present to open a connection.
func (s *Secrets) HasSQL() bool {
	return s.DatabaseURL != "" || s.SQL.SqlHost != ""
}

func (s *Secrets) HasInflux() bool {
	return s.Influx.InfluxEndpoint != ""
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// bare numbers are seconds
		d.Duration = time.Duration(value * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}

	return nil
}
