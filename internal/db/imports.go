package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ResolveLatestImportDBName returns the db_name of the newest trip-log import
// recorded in public.latest_successful_imports for a bike network
// (db_name ILIKE '%network%').
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, network string) (string, error) {
	network = strings.TrimSpace(network)
	if network == "" {
		return "", fmt.Errorf("network is required")
	}
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, q, network).Scan(&dbName); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no trip import found for network like %q", network)
		}
		return "", err
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("empty db_name for network like %q", network)
	}
	return dbName.String, nil
}

// OpenLatestImport connects to the newest import for network, using baseDSN's
// server and credentials. It returns the opened handle and its database name.
func OpenLatestImport(ctx context.Context, baseDSN, network string) (*sql.DB, string, error) {
	rootDSN, err := WithDBName(baseDSN, "postgres")
	if err != nil {
		return nil, "", fmt.Errorf("compose meta DSN: %w", err)
	}
	meta, err := Open(rootDSN)
	if err != nil {
		return nil, "", fmt.Errorf("open meta db: %w", err)
	}
	defer meta.Close()
	if err := Ping(ctx, meta); err != nil {
		return nil, "", fmt.Errorf("ping meta db: %w", err)
	}
	name, err := ResolveLatestImportDBName(ctx, meta, network)
	if err != nil {
		return nil, "", err
	}
	dsn, err := WithDBName(baseDSN, name)
	if err != nil {
		return nil, "", fmt.Errorf("compose DSN: %w", err)
	}
	conn, err := Open(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", name, err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("ping %s: %w", name, err)
	}
	return conn, name, nil
}
