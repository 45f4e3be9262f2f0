package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/bcaldwell/monzobridge/pkg/config"
	"github.com/bcaldwell/monzobridge/pkg/credstore"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
)

// Prints every Monzo account grouped by account type, using the tokens already in the keyring.
func main() {
	configFile := flag.String("config", "./config.yml", "configuration file")
	secretsFile := flag.String("secrets", "./secrets.json", "secrets file")
	flag.Parse()

	cfg, _, err := config.ReadConfig(config.ConfigEnvVar, *configFile, *secretsFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	store := credstore.New(credstore.OSKeyring(), cfg.Keyring.MonetrService, cfg.Keyring.MonzoService)
	creds, ok := store.LoadMonzo()
	if !ok || !creds.HasAccessToken() {
		fmt.Println("No Monzo tokens stored, run `monzobridge authorize` first")
		os.Exit(1)
	}

	session := monzo.NewSession(cfg.Monzo, store, creds)
	client := monzo.NewClient(cfg.Monzo.APIURL, cfg.Monzo.PageSize, cfg.Monzo.Timeout.Duration, session)

	accounts, err := client.ListAccounts(context.Background())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	types, byType := groupByType(accounts)
	for _, accountType := range types {
		PrettyPrint(accountType, byType[accountType])
	}

	if _, found := byType[cfg.Monzo.AccountType]; !found {
		fmt.Printf("no open account of the monitored type %q\n", cfg.Monzo.AccountType)
	}
}

// groupByType collects open accounts per type, returning the types in sorted order.
func groupByType(accounts []monzo.Account) ([]string, map[string][]string) {
	byType := make(map[string][]string)
	for _, account := range accounts {
		if account.Closed {
			continue
		}
		byType[account.Type] = append(byType[account.Type], account.ID+" "+account.Description)
	}

	types := make([]string, 0, len(byType))
	for accountType := range byType {
		types = append(types, accountType)
	}
	sort.Strings(types)

	return types, byType
}

func PrettyPrint(prefix string, v interface{}) (err error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		fmt.Println(prefix + ": " + string(b))
	}
	return
}
