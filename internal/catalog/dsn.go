package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"
)

// resolveDSN picks the database/sql driver for dsn and returns the data
// source name to hand to it. postgres:// and postgresql:// go to pgx;
// sqlite://path, file: URIs, bare paths and :memory: go to SQLite.
func resolveDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	if dsn == ":memory:" || !strings.Contains(dsn, "://") {
		return driverSQLite, dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return driverPostgres, dsn, nil
	case "sqlite":
		// sqlite:///abs/path or sqlite://rel/path
		return driverSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	default:
		return "", "", fmt.Errorf("unsupported catalog scheme %q", u.Scheme)
	}
}
