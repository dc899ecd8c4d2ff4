package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL for every table the writers insert into. Statements
// are idempotent so EnsureSchema can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq           BIGINT PRIMARY KEY,
		type          TEXT NOT NULL,
		ts            BIGINT NOT NULL,
		asset_id      BIGINT,
		payload       JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_asset_idx ON events (asset_id, seq)`,

	`CREATE TABLE IF NOT EXISTS trades (
		trade_id      UUID PRIMARY KEY,
		executed_at   BIGINT NOT NULL,
		asset_id      BIGINT NOT NULL,
		seller        TEXT NOT NULL,
		buyer         TEXT NOT NULL,
		quantity      BIGINT NOT NULL,
		price_percent INT NOT NULL,
		cost          BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trades_asset_idx ON trades (asset_id, executed_at)`,

	`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
		snapshot_ts   BIGINT NOT NULL,
		asset_id      BIGINT NOT NULL,
		levels        JSONB NOT NULL,
		pooled_funds  BIGINT NOT NULL,
		PRIMARY KEY (snapshot_ts, asset_id)
	)`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
