package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDBName returns dsn with its database path replaced by database.
// A DSN without a scheme is treated as postgres://.
func WithDBName(dsn, database string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if strings.TrimSpace(database) == "" {
		return "", fmt.Errorf("empty database name")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}
