package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/immochain/immochain/internal/events"
)

// Config holds feed server configuration.
type Config struct {
	PingInterval  time.Duration // Interval between control pings (default: 15s)
	WriteTimeout  time.Duration // Per-write deadline (default: 10s)
	SubscriberCap int           // Initial capacity of each subscriber buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:  15 * time.Second,
		WriteTimeout:  10 * time.Second,
		SubscriberCap: 1024,
	}
}

// Feed streams the notification log over WebSocket. Each connection replays
// history from its requested sequence number and then receives live events
// through its own log subscription.
type Feed struct {
	cfg    Config
	log    *events.Log
	logger *slog.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Feed.
func New(cfg Config, log *events.Log, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		cfg:    cfg,
		log:    log,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start prepares the feed to accept connections.
func (f *Feed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.logger.Info("websocket feed started",
		"ping_interval", f.cfg.PingInterval,
	)
	return nil
}

// Stop disconnects all subscribers and waits for their goroutines.
func (f *Feed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("websocket feed stopped")
		return nil
	case <-ctx.Done():
		f.logger.Warn("websocket feed stop timed out")
		return ctx.Err()
	}
}

// ServeHTTP upgrades the request and serves the event stream. The optional
// from query parameter picks the first sequence number to deliver; it
// defaults to 1, the start of history.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	from := int64(1)
	if raw := r.URL.Query().Get("from"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			http.Error(w, "invalid from parameter", http.StatusBadRequest)
			return
		}
		from = v
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	f.wg.Add(1)
	go f.serveConn(conn, from)
}

// serveConn drives one subscriber: replay first, then live events, with
// pings in between. Subscribing before replaying means no event can fall in
// the gap; duplicates across the boundary are filtered by sequence number.
func (f *Feed) serveConn(conn *websocket.Conn, from int64) {
	defer f.wg.Done()
	defer conn.Close()

	name := fmt.Sprintf("ws-%d", f.nextID.Add(1))
	sub := f.log.Subscribe(name, f.cfg.SubscriberCap)
	defer f.log.Unsubscribe(name)

	f.logger.Info("feed subscriber connected", "subscriber", name, "from", from)

	// Reader goroutine: we never expect client messages, but reading is how
	// gorilla surfaces close frames.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var lastSent int64
	for _, ev := range f.log.ReplayFrom(from) {
		if err := f.writeEvent(conn, ev); err != nil {
			f.logger.Warn("replay write failed", "subscriber", name, "error", err)
			return
		}
		lastSent = ev.Seq
	}

	pingTicker := time.NewTicker(f.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			deadline := time.Now().Add(f.cfg.WriteTimeout)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				deadline)
			return
		case <-clientGone:
			f.logger.Info("feed subscriber disconnected", "subscriber", name)
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(f.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				f.logger.Warn("ping failed", "subscriber", name, "error", err)
				return
			}
		default:
			ev, ok := sub.TryPop()
			if !ok {
				select {
				case <-f.ctx.Done():
				case <-clientGone:
				case <-time.After(10 * time.Millisecond):
				}
				continue
			}
			if ev.Seq <= lastSent || ev.Seq < from {
				continue
			}
			if err := f.writeEvent(conn, ev); err != nil {
				f.logger.Warn("live write failed", "subscriber", name, "error", err)
				return
			}
			lastSent = ev.Seq
		}
	}
}

func (f *Feed) writeEvent(conn *websocket.Conn, ev events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
	return conn.WriteJSON(ev)
}
