// Package sqlitestore is a single-file store backend meant for local
// development and small deployments where running Postgres is overkill.
package sqlitestore

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/kpmarket/auctiond/internal/clock"
	"github.com/kpmarket/auctiond/internal/config"
	"github.com/kpmarket/auctiond/internal/store"
)

// schema is applied on every open; CREATE TABLE IF NOT EXISTS makes it
// idempotent. Monetary amounts are stored as TEXT to keep exact decimal
// values.
const schema = `
CREATE TABLE IF NOT EXISTS listings (
    id               INTEGER PRIMARY KEY,
    creator          TEXT NOT NULL,
    asset_contract   TEXT NOT NULL,
    asset_id         INTEGER NOT NULL,
    start_price      TEXT NOT NULL,
    direct_buy_price TEXT NOT NULL,
    min_increment    TEXT NOT NULL,
    cancelled        BOOLEAN NOT NULL DEFAULT 0,
    asset_withdrawn  BOOLEAN NOT NULL DEFAULT 0,
    funds_withdrawn  BOOLEAN NOT NULL DEFAULT 0,
    tombstoned       BOOLEAN NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL,
    end_time         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS bids (
    listing_id INTEGER NOT NULL REFERENCES listings (id),
    seq        INTEGER NOT NULL,
    bidder     TEXT NOT NULL,
    amount     TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (listing_id, seq)
);

CREATE TABLE IF NOT EXISTS events (
    id           TEXT PRIMARY KEY,
    aggregate_id TEXT NOT NULL,
    type         TEXT NOT NULL,
    data         TEXT NOT NULL,
    version      INTEGER NOT NULL,
    created_at   TIMESTAMP NOT NULL,
    UNIQUE (aggregate_id, version)
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
`

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("sqlite", openSqlite)
}

// openSqlite is the store.Driver for the "sqlite" backend.
func openSqlite(ctx context.Context, cfg config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Listings: NewListingRepo(db),
		Events:   NewEventStore(db),
		Closer:   closerFunc(db.Close),
		Ping:     db.PingContext,
	}, nil
}

// Connect opens the database file, applies the schema and returns a
// connected *sqlx.DB with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driverName, err := otelsql.Register("sqlite3",
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite tolerates a single writer; one connection also keeps
	// in-memory databases on a single handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}
