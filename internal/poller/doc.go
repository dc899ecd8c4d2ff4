// Package poller implements the Book Snapshot Poller component.
//
// The Book Snapshot Poller:
//   - Walks every registered asset on a fixed interval
//   - Captures the open sell levels and pooled marketplace funds
//   - Pushes snapshots to a buffer consumed by the snapshot writer
package poller
