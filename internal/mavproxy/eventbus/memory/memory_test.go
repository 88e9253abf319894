package memory

import (
	"context"
	"testing"
	"time"

	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	ch := make(chan eventbus.RouterEvent, 1)
	unsubscribe, err := bus.Subscribe(ch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	evt := eventbus.RouterEvent{Type: eventbus.RouterStarted, Router: "MAVLinkRouter", PID: 42}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := <-ch
	if got.PID != 42 || got.Timestamp.IsZero() {
		t.Fatalf("unexpected event: %#v", got)
	}

	unsubscribe()
	unsubscribe()
	if bus.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", bus.Subscribers())
	}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery after unsubscribe: %#v", v)
	default:
	}
}

func TestPublishKeepsTimestamp(t *testing.T) {
	bus := New()
	ch := make(chan eventbus.RouterEvent, 1)
	if _, err := bus.Subscribe(ch); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := bus.Publish(context.Background(), eventbus.RouterEvent{Type: eventbus.RouterStopped, Timestamp: stamp}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := <-ch; !got.Timestamp.Equal(stamp) {
		t.Fatalf("timestamp rewritten: %v", got.Timestamp)
	}
}

func TestFullSubscriberDropsEvents(t *testing.T) {
	bus := New()
	slow := make(chan eventbus.RouterEvent, 1)
	fast := make(chan eventbus.RouterEvent, 4)
	if _, err := bus.Subscribe(slow); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Subscribe(fast); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), eventbus.RouterEvent{Type: eventbus.RouterStarted, PID: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if len(fast) != 3 || len(slow) != 1 {
		t.Fatalf("unexpected buffer fill: fast=%d slow=%d", len(fast), len(slow))
	}
	if bus.Dropped() != 2 {
		t.Fatalf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	bus := New()
	if _, err := bus.Subscribe(make(chan eventbus.RouterEvent, 1)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, eventbus.RouterEvent{Type: eventbus.RouterExited}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSubscribeRejectsNil(t *testing.T) {
	if _, err := New().Subscribe(nil); err == nil {
		t.Fatalf("expected error for nil channel")
	}
}
