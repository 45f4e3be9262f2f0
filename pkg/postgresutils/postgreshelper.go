package postgresutils

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"k8s.io/klog"

	"github.com/bcaldwell/monzobridge/pkg/config"
)

const defaultDatabase = "monzobridge"

func CreatePostgresClient(secrets *config.Secrets, dbname string) (*bun.DB, error) {
	var pgconn *pgdriver.Connector

	if dbname == "" {
		dbname = defaultDatabase
	}

	// bypass creating of db if database_url is set because we are likely running on a hosted db then
	if secrets.DatabaseURL == "" {
		sqlHost := secrets.SQL.SqlHost
		// slightly silly logic to add port if missing
		if !strings.Contains(sqlHost, ":") {
			sqlHost += ":5432"
		}

		err := ensureDBExistsInPostgres(secrets.SQL, sqlHost, dbname)
		if err != nil {
			return nil, err
		}

		pgconn = pgdriver.NewConnector(
			pgdriver.WithAddr(sqlHost),
			pgdriver.WithInsecure(true),
			pgdriver.WithUser(secrets.SQL.SqlUsername),
			pgdriver.WithPassword(secrets.SQL.SqlPassword),
			pgdriver.WithDatabase(dbname),
		)
	} else {
		// this panics if its invalid
		pgconn = pgdriver.NewConnector(pgdriver.WithDSN(secrets.DatabaseURL))
	}

	db := sql.OpenDB(pgconn)
	err := db.Ping()

	return bun.NewDB(db, pgdialect.New()), err
}

func ensureDBExistsInPostgres(sqlSecrets config.SqlSecrets, sqlHost, dbname string) error {
	pgconn := pgdriver.NewConnector(
		pgdriver.WithAddr(sqlHost),
		pgdriver.WithInsecure(true),
		pgdriver.WithUser(sqlSecrets.SqlUsername),
		pgdriver.WithPassword(sqlSecrets.SqlPassword),
		pgdriver.WithDatabase("postgres"),
	)

	db := sql.OpenDB(pgconn)
	defer db.Close()

	rows, err := db.Query("SELECT datname FROM pg_database where datname = $1", dbname)
	if err != nil {
		return fmt.Errorf("Failed to get list of databases: %s", err)
	}
	defer rows.Close()

	// next meaning there is a row, all we care about is if there is a row
	if !rows.Next() {
		klog.Infof("Creating database %s in postgres database\n", dbname)
		_, err := db.Exec("CREATE DATABASE " + QuoteIdent(dbname))
		if err != nil {
			return fmt.Errorf("failed to create database %s: %w", dbname, err)
		}
	}

	return nil
}

// QuoteIdent quotes a postgres identifier for statements that can't take parameters.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableSetString builds the SET clause of an upsert that overwrites every column except exclude.
func TableSetString(db *bun.DB, model interface{}, exclude ...string) string {
	t := db.Dialect().Tables().Get(reflect.TypeOf(model).Elem())
	if t == nil {
		return ""
	}

	parts := []string{}

	for _, f := range t.Fields {
		if isInArray(exclude, f.Name) {
			continue
		}

		parts = append(parts, fmt.Sprintf("%s = EXCLUDED.%s", f.Name, f.Name))
	}

	return strings.Join(parts, ", ")
}

func isInArray(arr []string, s string) bool {
	for _, i := range arr {
		if i == s {
			return true
		}
	}

	return false
}
