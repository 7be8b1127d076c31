package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names a database/sql driver supported by the catalog.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverPGX      Driver = "pgx"
)

func (d Driver) placeholder() sq.PlaceholderFormat {
	if d == DriverSQLite {
		return sq.Question
	}
	return sq.Dollar
}

func (d Driver) valid() bool {
	switch d {
	case DriverSQLite, DriverPostgres, DriverPGX:
		return true
	}
	return false
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS products (
	original_id   TEXT PRIMARY KEY,
	ean           TEXT NOT NULL DEFAULT '',
	original_name TEXT NOT NULL,
	resolved_name TEXT,
	resolved_url  TEXT,
	lowest_price  TEXT,
	seller_name   TEXT,
	is_available  BOOLEAN NOT NULL DEFAULT 0,
	last_scraped  TIMESTAMP,
	scrape_error  TEXT,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS products (
	original_id   VARCHAR(50) PRIMARY KEY,
	ean           VARCHAR(50) NOT NULL DEFAULT '',
	original_name VARCHAR(500) NOT NULL,
	resolved_name VARCHAR(500),
	resolved_url  VARCHAR(1000),
	lowest_price  NUMERIC(10, 2),
	seller_name   VARCHAR(200),
	is_available  BOOLEAN NOT NULL DEFAULT FALSE,
	last_scraped  TIMESTAMPTZ,
	scrape_error  TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

// Open connects to the catalog database and creates the schema if needed.
// SQLite is limited to one connection so writers serialize and in-memory
// databases are shared by every query.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	if !driver.valid() {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := Migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the products table for the given dialect.
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	schema := postgresSchema
	if driver == DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate products: %w", err)
	}
	return nil
}
