package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus"
)

// Bus fans router events out to in-process subscribers. A subscriber whose
// buffer is full misses the event; publishers never block on it.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan<- eventbus.RouterEvent
	dropped atomic.Uint64
	now     func() time.Time
}

var _ eventbus.Bus = (*Bus)(nil)

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]chan<- eventbus.RouterEvent),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Publish delivers evt to every subscriber with buffer room.
func (b *Bus) Publish(ctx context.Context, evt eventbus.RouterEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers ch until the returned function is called. Calling it
// more than once is harmless.
func (b *Bus) Subscribe(ch chan<- eventbus.RouterEvent) (func(), error) {
	if ch == nil {
		return nil, errors.New("eventbus: channel must not be nil")
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}, nil
}

// Subscribers reports the number of registered channels.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
