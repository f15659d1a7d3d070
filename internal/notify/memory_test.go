package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBusDeliversMatchingEvents(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	var got []Event
	sub, err := bus.Subscribe(ctx, "orders", "r1", func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	events := []Event{
		{Table: "orders", Kind: KindInsert, RestaurantID: "r1", RowID: "o1", At: time.Now()},
		{Table: "orders", Kind: KindUpdate, RestaurantID: "r2", RowID: "o2", At: time.Now()},     // other tenant
		{Table: "menu_items", Kind: KindInsert, RestaurantID: "r1", RowID: "m1", At: time.Now()}, // other table
		{Table: "orders", Kind: KindDelete, RestaurantID: "r1", RowID: "o1", At: time.Now()},
	}
	for _, ev := range events {
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	bus.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 matching events, got %d", len(got))
	}
	for _, ev := range got {
		if ev.Table != "orders" || ev.RestaurantID != "r1" {
			t.Fatalf("unmatched event delivered: %+v", ev)
		}
	}
}

func TestMemoryBusCancelStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(ctx, "orders", "r1", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = bus.Publish(ctx, Event{Table: "orders", RestaurantID: "r1", RowID: "o1"})
	bus.Flush()
	sub.Cancel()
	_ = bus.Publish(ctx, Event{Table: "orders", RestaurantID: "r1", RowID: "o2"})
	bus.Flush()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", count)
	}
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"a", "b"} {
		name := name
		if _, err := bus.Subscribe(ctx, "orders", "r1", func(Event) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("subscribe %s: %v", name, err)
		}
	}

	_ = bus.Publish(ctx, Event{Table: "orders", RestaurantID: "r1", RowID: "o1"})
	bus.Flush()

	mu.Lock()
	defer mu.Unlock()
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Fatalf("both subscribers must see the event: %v", counts)
	}
}
