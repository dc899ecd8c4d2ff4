// Package writer implements batch writers persisting the notification log.
//
// Writers:
//   - Event writer (full log, keyed by sequence number)
//   - Trade writer (trade_executed segments, keyed by trade ID)
//   - Snapshot writer (periodic order-book snapshots from the poller)
//
// All writers use append-only semantics (never update, only insert) and
// idempotent inserts (ON CONFLICT DO NOTHING), so a restart that replays the
// log cannot duplicate rows.
package writer
