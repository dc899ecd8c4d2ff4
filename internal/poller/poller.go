package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
)

// AssetSource provides the assets to snapshot.
type AssetSource interface {
	Assets() []model.Asset
}

// BookSource provides the open book and pooled funds per snapshot cycle.
type BookSource interface {
	OrderCountByPrice(assetID int64) []model.PriceLevel
	FundsBalance() int64
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Snapshot interval (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
	}
}

// Poller periodically captures per-asset book snapshots and pushes them to
// the output buffer.
type Poller struct {
	cfg    Config
	assets AssetSource
	book   BookSource
	out    *events.Buffer[model.BookSnapshot]
	logger *slog.Logger

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, assets AssetSource, book BookSource, out *events.Buffer[model.BookSnapshot], logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		assets: assets,
		book:   book,
		out:    out,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins the snapshot loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("book snapshot poller started",
		"interval", p.cfg.Interval,
	)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("book snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main snapshot loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Snapshot immediately on start.
	p.snapshotAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.snapshotAll()
		}
	}
}

// snapshotAll captures one snapshot per registered asset.
func (p *Poller) snapshotAll() {
	start := p.now()

	assets := p.assets.Assets()
	if len(assets) == 0 {
		p.logger.Debug("no assets to snapshot")
		return
	}

	ts := start.UnixMicro()
	pooled := p.book.FundsBalance()

	var pushed int
	for _, asset := range assets {
		snap := model.BookSnapshot{
			SnapshotTS:  ts,
			AssetID:     asset.ID,
			Levels:      p.book.OrderCountByPrice(asset.ID),
			PooledFunds: pooled,
		}
		if p.out.Push(snap) {
			pushed++
		}
	}

	p.logger.Debug("snapshot cycle complete",
		"assets", len(assets),
		"pushed", pushed,
		"duration", time.Since(start),
	)
}
