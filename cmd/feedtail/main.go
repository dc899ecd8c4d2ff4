// feedtail connects to a marketd event feed and prints events to stdout as
// JSON lines.
//
// Usage: go run ./cmd/feedtail --url ws://localhost:8080/ws --from 1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/immochain/immochain/internal/events"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "feed websocket URL")
	from := flag.Int64("from", 1, "first sequence number to replay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	enc := json.NewEncoder(os.Stdout)

	// Reconnect loop with capped backoff. After a drop the stream resumes
	// from the last printed sequence number, so no event is lost or
	// duplicated across reconnects.
	next := *from
	delay := reconnectBaseDelay
	for ctx.Err() == nil {
		last, err := tail(ctx, *url, next, enc, logger)
		if last >= next {
			next = last + 1
			delay = reconnectBaseDelay
		}
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			logger.Warn("feed disconnected", "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}

	logger.Info("feedtail stopped", "next_seq", next)
}

// tail streams one connection until it drops or ctx is canceled. It returns
// the last sequence number printed, 0 when none were.
func tail(ctx context.Context, url string, from int64, enc *json.Encoder, logger *slog.Logger) (int64, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s?from=%d", url, from), nil)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	logger.Info("connected", "url", url, "from", from)

	// Close the connection when ctx ends so the read loop unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var last int64
	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return last, err
		}
		if err := enc.Encode(ev); err != nil {
			return last, err
		}
		last = ev.Seq
	}
}
