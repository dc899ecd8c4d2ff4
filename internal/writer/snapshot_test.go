package writer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
)

func TestSnapshotWriter_Transform(t *testing.T) {
	snap := model.BookSnapshot{
		SnapshotTS: 1705320000000000,
		AssetID:    5,
		Levels: []model.PriceLevel{
			{PricePercent: 80, Quantity: 100},
			{PricePercent: 95, Quantity: 30},
		},
		PooledFunds: 12500,
	}

	row, err := transformSnapshot(snap)
	if err != nil {
		t.Fatalf("transformSnapshot() error = %v", err)
	}

	if row.SnapshotTS != 1705320000000000 {
		t.Errorf("SnapshotTS = %d, want 1705320000000000", row.SnapshotTS)
	}
	if row.AssetID != 5 {
		t.Errorf("AssetID = %d, want 5", row.AssetID)
	}
	if row.PooledFunds != 12500 {
		t.Errorf("PooledFunds = %d, want 12500", row.PooledFunds)
	}

	var levels []model.PriceLevel
	if err := json.Unmarshal(row.Levels, &levels); err != nil {
		t.Fatalf("levels do not decode: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("levels len = %d, want 2", len(levels))
	}
	if levels[0].PricePercent != 80 || levels[0].Quantity != 100 {
		t.Errorf("levels[0] = %+v, want {80 100}", levels[0])
	}
}

func TestSnapshotWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := events.NewBuffer[model.BookSnapshot](10)

	w := NewSnapshotWriter(cfg, input, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSnapshotWriter_HandleSnapshot_AddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // Large batch so no auto-flush
		FlushInterval: time.Hour,
	}
	input := events.NewBuffer[model.BookSnapshot](10)
	w := NewSnapshotWriter(cfg, input, nil, nil)

	w.handleSnapshot(model.BookSnapshot{SnapshotTS: 1, AssetID: 1})
	w.handleSnapshot(model.BookSnapshot{SnapshotTS: 1, AssetID: 2})

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.batch) != 2 {
		t.Errorf("batch len = %d, want 2", len(w.batch))
	}
}
