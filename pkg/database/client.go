// Package database opens the relational store behind the report index. It
// supports PostgreSQL (lib/pq) for deployments and SQLite (modernc) for
// embedded use and tests, and rewrites $N placeholders for the latter.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Client struct {
	DB     *sql.DB
	driver string
}

func New(cfg config.DatabaseConfig) (*Client, error) {
	return Open(cfg.Driver, cfg.DSN(), cfg)
}

// Open connects with an explicit DSN. Pool settings come from cfg; zero
// values leave the database/sql defaults in place.
func Open(driver, dsn string, cfg config.DatabaseConfig) (*Client, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if driver == DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", driver, err)
	}
	return &Client{DB: db, driver: driver}, nil
}

func (c *Client) Driver() string {
	return c.driver
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Rebind converts a query written with $N placeholders into the form the
// active driver expects. SQLite accepts ?N with the same numbering.
func (c *Client) Rebind(query string) string {
	if c.driver != DriverSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
