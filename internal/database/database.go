// Package database centralises sqlx connection helpers for the metadata
// store.  Two drivers are linked: go-sql-driver/mysql ("mysql", also fine
// for MariaDB) and pgx's database/sql adapter ("pgx").
//
// OpenWithOptions pings before returning so boot fails fast on a bad DSN.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Drivers accepted by OpenWithOptions.
const (
	MySQL    = "mysql"
	Postgres = "pgx"
)

// OpenWithOptions opens a pool with a 30-minute connection lifetime.  Zero
// pool sizes keep the database/sql defaults.
func OpenWithOptions(ctx context.Context, driver, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	switch driver {
	case MySQL, Postgres:
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping %s: %w", driver, err)
	}
	return db, nil
}
