package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
)

// snapshotRow is the persisted form of one book snapshot.
type snapshotRow struct {
	SnapshotTS  int64
	AssetID     int64
	Levels      []byte
	PooledFunds int64
}

// SnapshotWriter consumes periodic book snapshots from the poller and
// writes them to the orderbook_snapshots table.
type SnapshotWriter struct {
	cfg    Config
	logger *slog.Logger

	input *events.Buffer[model.BookSnapshot]
	db    *pgxpool.Pool

	// Snapshots arrive on a timer, so the batch stays small
	batch       []snapshotRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewSnapshotWriter creates a new SnapshotWriter.
func NewSnapshotWriter(cfg Config, input *events.Buffer[model.BookSnapshot], db *pgxpool.Pool, logger *slog.Logger) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]snapshotRow, 0, 100),
	}
}

// Start begins consuming snapshots and writing to the database.
func (w *SnapshotWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("snapshot writer stopped")
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *SnapshotWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *SnapshotWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			snap, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleSnapshot(snap)
		}
	}
}

func (w *SnapshotWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *SnapshotWriter) handleSnapshot(snap model.BookSnapshot) {
	row, err := transformSnapshot(snap)
	if err != nil {
		w.logger.Error("marshal snapshot failed", "asset_id", snap.AssetID, "error", err)
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transformSnapshot converts a BookSnapshot to a snapshotRow with JSONB levels.
func transformSnapshot(snap model.BookSnapshot) (snapshotRow, error) {
	levels, err := json.Marshal(snap.Levels)
	if err != nil {
		return snapshotRow{}, err
	}
	return snapshotRow{
		SnapshotTS:  snap.SnapshotTS,
		AssetID:     snap.AssetID,
		Levels:      levels,
		PooledFunds: snap.PooledFunds,
	}, nil
}

func (w *SnapshotWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]snapshotRow, 0, 100)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed snapshots",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *SnapshotWriter) batchInsert(rows []snapshotRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO orderbook_snapshots (snapshot_ts, asset_id, levels, pooled_funds)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (snapshot_ts, asset_id) DO NOTHING
		`, r.SnapshotTS, r.AssetID, r.Levels, r.PooledFunds)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
