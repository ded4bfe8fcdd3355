package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusDeliversToTypeSubscribers(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var got []Event
	done := make(chan struct{}, 1)

	b.Subscribe(EventTradeEntry, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
	})
	b.Subscribe(EventError, func(e Event) {
		t.Error("error subscriber must not receive trade events")
	})

	b.PublishTradeEntry("EURUSD", "trend_following", "BUY", 1001, 1.1, 0.4, 1.095, 1.11)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	e := got[0]
	if e.Type != EventTradeEntry || e.Symbol != "EURUSD" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.ID == "" {
		t.Error("event should carry a generated id")
	}
	if e.Timestamp.IsZero() {
		t.Error("event should carry a timestamp")
	}
	if e.Data["ticket"] != int64(1001) {
		t.Errorf("unexpected ticket: %v", e.Data["ticket"])
	}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	seen := make(chan EventType, 3)
	b.SubscribeAll(func(e Event) { seen <- e.Type })

	b.PublishSystemMessage("started")
	b.PublishSignalRejected("EURUSD", "scalping", "BUY", "spread_too_high")
	b.PublishError("EURUSD", "supervisor", "tick failed", nil)

	types := map[EventType]bool{}
	for i := 0; i < 3; i++ {
		select {
		case et := <-seen:
			types[et] = true
		case <-time.After(time.Second):
			t.Fatal("missing event delivery")
		}
	}
	for _, want := range []EventType{EventSystemMessage, EventSignalRejected, EventError} {
		if !types[want] {
			t.Errorf("all-subscriber missed %s", want)
		}
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	release := make(chan struct{})
	b.Subscribe(EventSignal, func(e Event) { <-release })

	start := time.Now()
	b.PublishSignal("EURUSD", "breakout", "SELL", 0.8, 1.1)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("publish blocked for %s", elapsed)
	}
	close(release)
}
