package notify

import (
	"context"
	"sync"
)

// MemoryBus dispatches events in-process. Used by tests and local
// runs; semantics match the broker-backed bus (no replay, delivery on
// a goroutine separate from the publisher).
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]memorySub
	wg     sync.WaitGroup
}

type memorySub struct {
	table        string
	restaurantID string
	fn           Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]memorySub)}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	var targets []Handler
	for _, s := range b.subs {
		if s.table == ev.Table && s.restaurantID == ev.RestaurantID {
			targets = append(targets, s.fn)
		}
	}
	b.mu.Unlock()

	b.wg.Add(len(targets))
	for _, fn := range targets {
		go func(fn Handler) {
			defer b.wg.Done()
			fn(ev)
		}(fn)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, table, restaurantID string, fn Handler) (*Subscription, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = memorySub{table: table, restaurantID: restaurantID, fn: fn}
	b.mu.Unlock()

	return newSubscription(func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}), nil
}

// Flush waits for in-flight deliveries; test helper.
func (b *MemoryBus) Flush() { b.wg.Wait() }
