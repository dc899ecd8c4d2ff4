package events

import (
	"testing"
	"time"
)

func testEvent(typ Type, assetID int64) Event {
	return Event{Type: typ, TS: time.Now().UnixMicro(), AssetID: assetID}
}

func TestLog_AppendAssignsDenseSeq(t *testing.T) {
	l := NewLog(nil)

	for i := int64(1); i <= 5; i++ {
		ev := l.Append(testEvent(TypeListedForSale, 1))
		if ev.Seq != i {
			t.Errorf("Append() seq = %d, want %d", ev.Seq, i)
		}
	}

	if l.LastSeq() != 5 {
		t.Errorf("LastSeq() = %d, want 5", l.LastSeq())
	}
}

func TestLog_ReplayFrom(t *testing.T) {
	l := NewLog(nil)
	for i := 0; i < 10; i++ {
		l.Append(testEvent(TypeTradeExecuted, int64(i)))
	}

	all := l.ReplayFrom(0)
	if len(all) != 10 {
		t.Fatalf("ReplayFrom(0) len = %d, want 10", len(all))
	}
	if all[0].Seq != 1 {
		t.Errorf("first seq = %d, want 1", all[0].Seq)
	}

	tail := l.ReplayFrom(8)
	if len(tail) != 3 {
		t.Fatalf("ReplayFrom(8) len = %d, want 3", len(tail))
	}
	if tail[0].Seq != 8 || tail[2].Seq != 10 {
		t.Errorf("tail seqs = %d..%d, want 8..10", tail[0].Seq, tail[2].Seq)
	}

	if got := l.ReplayFrom(11); got != nil {
		t.Errorf("ReplayFrom(11) = %v, want nil", got)
	}
}

func TestLog_SubscriberReceivesLiveEvents(t *testing.T) {
	l := NewLog(nil)
	l.Append(testEvent(TypeAssetRegistered, 1))

	sub := l.Subscribe("writer", 8)

	// Only events after the subscription arrive on the buffer.
	l.Append(testEvent(TypeListedForSale, 1))
	l.Append(testEvent(TypeTradeExecuted, 1))

	got, ok := sub.TryPop()
	if !ok {
		t.Fatal("subscriber buffer empty")
	}
	if got.Seq != 2 || got.Type != TypeListedForSale {
		t.Errorf("first event = seq %d type %q, want seq 2 %q", got.Seq, got.Type, TypeListedForSale)
	}

	if sub.Len() != 1 {
		t.Errorf("buffer len = %d, want 1", sub.Len())
	}
}

func TestLog_UnsubscribeClosesBuffer(t *testing.T) {
	l := NewLog(nil)
	sub := l.Subscribe("feed", 8)

	l.Unsubscribe("feed")

	if _, ok := sub.Pop(); ok {
		t.Error("Pop() on unsubscribed buffer returned ok")
	}

	// Appending after unsubscribe must not panic or block.
	l.Append(testEvent(TypePriceChanged, 1))
}
