// Package database manages the PostgreSQL connection pool and schema for
// event persistence.
//
// Tables:
//   - events: the full notification log, keyed by sequence number
//   - trades: one row per matched trade segment
//   - orderbook_snapshots: periodic per-asset book and funds snapshots
//
// All tables are append-only (writers never update, only insert).
package database
