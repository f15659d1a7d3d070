// Package notify is the change-notification boundary: a subscription
// primitive that fires a callback when rows matching a filter change.
// Delivery is at-least-once and unordered across tables; there is no
// replay after a disconnect, so handlers must tolerate duplicates and
// gaps.
package notify

import (
	"context"
	"sync"
	"time"
)

// Event is one row-level change.
type Event struct {
	Table        string    `json:"table"`
	Kind         string    `json:"kind"` // insert | update | delete
	RestaurantID string    `json:"restaurant_id"`
	RowID        string    `json:"row_id"`
	At           time.Time `json:"at"`
}

const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

type Handler func(Event)

// Subscription stops delivery when cancelled. Cancellation is
// idempotent; an event already dispatched may still reach the handler.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() { s.once.Do(s.cancel) }

func newSubscription(cancel func()) *Subscription { return &Subscription{cancel: cancel} }

// Bus carries change events between writers and subscribers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe delivers every change to rows of table belonging to
	// restaurantID. The handler runs on the delivery goroutine.
	Subscribe(ctx context.Context, table, restaurantID string, fn Handler) (*Subscription, error)
}
