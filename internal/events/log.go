package events

import (
	"log/slog"
	"sync"
)

// Log is the append-only notification log plus its fan-out to subscribers.
// Append assigns dense sequence numbers starting at 1; the full history is
// retained so any consumer can rebuild state by replaying from genesis.
type Log struct {
	mu      sync.RWMutex
	entries []Event
	subs    map[string]*Buffer[Event]
	logger  *slog.Logger

	published int64
}

// NewLog creates an empty log.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		subs:   make(map[string]*Buffer[Event]),
		logger: logger,
	}
}

// Append assigns the next sequence number, stores the event, and hands a copy
// to every subscriber. Callers publish only after their mutation succeeded
// and while still holding their state lock, so log order matches the serial
// operation order.
func (l *Log) Append(ev Event) Event {
	l.mu.Lock()
	ev.Seq = int64(len(l.entries)) + 1
	l.entries = append(l.entries, ev)
	l.published++
	for name, sub := range l.subs {
		if !sub.Push(ev) {
			l.logger.Warn("subscriber closed, dropping event", "subscriber", name, "seq", ev.Seq)
		}
	}
	l.mu.Unlock()

	l.logger.Debug("event appended", "seq", ev.Seq, "type", ev.Type)
	return ev
}

// Subscribe registers a named consumer buffer. Events appended after the
// subscription are pushed to it; use ReplayFrom for history.
func (l *Log) Subscribe(name string, capacity int) *Buffer[Event] {
	buf := NewBuffer[Event](capacity)
	l.mu.Lock()
	l.subs[name] = buf
	l.mu.Unlock()
	return buf
}

// Unsubscribe removes and closes a consumer buffer.
func (l *Log) Unsubscribe(name string) {
	l.mu.Lock()
	buf, ok := l.subs[name]
	if ok {
		delete(l.subs, name)
	}
	l.mu.Unlock()
	if ok {
		buf.Close()
	}
}

// ReplayFrom returns a copy of all events with Seq >= from, in order.
// ReplayFrom(0) and ReplayFrom(1) both return the full history.
func (l *Log) ReplayFrom(from int64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := from - 1
	if start < 0 {
		start = 0
	}
	if start >= int64(len(l.entries)) {
		return nil
	}
	out := make([]Event, int64(len(l.entries))-start)
	copy(out, l.entries[start:])
	return out
}

// LastSeq returns the sequence number of the newest event, 0 when empty.
func (l *Log) LastSeq() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.entries))
}

// Len returns the number of events in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
