// Package orders manages the order lifecycle: creation with dependent
// line items, status updates, ordered cascading deletion and a live
// change feed. Every multi-row operation is a sequence of independent
// row-store calls with a strict phase order; there is no transaction
// to lean on.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tableside/internal/domain"
	"tableside/internal/logger"
	"tableside/internal/notify"
	"tableside/internal/rowstore"
	"tableside/internal/saga"
)

type Manager struct {
	store rowstore.Client
	bus   notify.Bus
	log   *logger.Logger
}

func NewManager(store rowstore.Client, bus notify.Bus, log *logger.Logger) *Manager {
	return &Manager{store: store, bus: bus, log: log}
}

// CreateOrderSpec is the caller's request. CreatedBy is the explicit
// caller identity; nothing here is read from ambient state.
type CreateOrderSpec struct {
	RestaurantID string
	TableID      *string // nil for takeout / delivery
	Type         string
	CreatedBy    string
	Items        []CreateOrderItem
}

type CreateOrderItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  float64
	Notes      string
	AddOns     []CreateOrderAddOn
}

// CreateOrderAddOn carries the add-on name and price as they are at
// order time; they are stored denormalized on the order.
type CreateOrderAddOn struct {
	Name     string
	Price    float64
	Quantity int
}

func (s CreateOrderSpec) validate() error {
	if s.RestaurantID == "" {
		return domain.Validationf("restaurant id is required")
	}
	if s.CreatedBy == "" {
		return domain.Validationf("caller identity is required")
	}
	if !domain.ValidOrderType(s.Type) {
		return domain.Validationf("unknown order type %q", s.Type)
	}
	if s.Type == domain.OrderTypeDineIn && s.TableID == nil {
		return domain.Validationf("dine-in order needs a table")
	}
	if len(s.Items) == 0 {
		return domain.Validationf("at least one item is required")
	}
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			return domain.Validationf("invalid quantity for item %q", it.Name)
		}
		if it.UnitPrice < 0 {
			return domain.Validationf("invalid price for item %q", it.Name)
		}
		for _, a := range it.AddOns {
			if a.Quantity <= 0 {
				return domain.Validationf("invalid quantity for addon %q", a.Name)
			}
		}
	}
	return nil
}

func (s CreateOrderSpec) total() float64 {
	total := 0.0
	for _, it := range s.Items {
		line := it.UnitPrice
		for _, a := range it.AddOns {
			line += a.Price * float64(a.Quantity)
		}
		total += line * float64(it.Quantity)
	}
	return total
}

// CreateOrder writes the order row first, then all item and captured
// add-on rows referencing it. If the item batch fails after the order
// row was persisted, the returned *domain.PartialWriteError names the
// order id; the orphaned row is NOT removed automatically, the caller
// decides whether to retry the item write or clean up.
func (m *Manager) CreateOrder(ctx context.Context, spec CreateOrderSpec) (domain.Order, error) {
	if err := spec.validate(); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:           uuid.NewString(),
		RestaurantID: spec.RestaurantID,
		TableID:      spec.TableID,
		Number:       newOrderNumber(now),
		Type:         spec.Type,
		Status:       domain.StatusPending,
		TotalAmount:  spec.total(),
		CreatedBy:    spec.CreatedBy,
		CreatedAt:    now,
	}

	var itemRows, addOnRows []rowstore.Row
	for _, src := range spec.Items {
		item := domain.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			MenuItemID: src.MenuItemID,
			Name:       src.Name,
			Quantity:   src.Quantity,
			UnitPrice:  src.UnitPrice,
			Notes:      src.Notes,
		}
		itemRows = append(itemRows, orderItemToRow(item))
		for _, a := range src.AddOns {
			addOn := domain.OrderItemAddOn{
				ID:          uuid.NewString(),
				OrderItemID: item.ID,
				Name:        a.Name,
				Price:       a.Price,
				Quantity:    a.Quantity,
			}
			item.AddOns = append(item.AddOns, addOn)
			addOnRows = append(addOnRows, orderItemAddOnToRow(addOn))
		}
		order.Items = append(order.Items, item)
	}

	err := saga.Run(ctx, "create_order",
		saga.Phase{
			Name: "insert_order",
			Desc: fmt.Sprintf("order %s", order.ID),
			Run: func(ctx context.Context) error {
				return m.store.Insert(ctx, tableOrders, []rowstore.Row{orderToRow(order)})
			},
		},
		saga.Phase{
			Name: "insert_items",
			Desc: fmt.Sprintf("%d order items", len(itemRows)),
			Run: func(ctx context.Context) error {
				return m.store.Insert(ctx, tableOrderItems, itemRows)
			},
		},
		saga.Phase{
			Name: "insert_item_addons",
			Desc: fmt.Sprintf("%d captured addons", len(addOnRows)),
			Run: func(ctx context.Context) error {
				if len(addOnRows) == 0 {
					return nil
				}
				return m.store.Insert(ctx, tableOrderItemAddOns, addOnRows)
			},
		},
	)
	if err != nil {
		return domain.Order{}, err
	}

	m.publish(notify.Event{
		Table:        tableOrders,
		Kind:         notify.KindInsert,
		RestaurantID: order.RestaurantID,
		RowID:        order.ID,
		At:           now,
	})
	m.log.Info("order_created", map[string]any{
		"order_id": order.ID,
		"number":   order.Number,
		"total":    order.TotalAmount,
		"items":    len(order.Items),
	})
	return order, nil
}

// GetOrder returns the order with line items and captured add-ons.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := m.fetchOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	items, err := m.fetchItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	for i := range items {
		rows, err := m.store.Select(ctx, rowstore.Query{
			Table:   tableOrderItemAddOns,
			Filters: []rowstore.Filter{rowstore.Eq("order_item_id", items[i].ID)},
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("get order: addons: %w", err)
		}
		for _, row := range rows {
			items[i].AddOns = append(items[i].AddOns, orderItemAddOnFromRow(row))
		}
	}
	order.Items = items
	return order, nil
}

// ListOrders returns the restaurant's orders, newest first, without
// line items. Use GetOrder for the full shape.
func (m *Manager) ListOrders(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	rows, err := m.store.Select(ctx, rowstore.Query{
		Table:      tableOrders,
		Filters:    []rowstore.Filter{rowstore.Eq("restaurant_id", restaurantID)},
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, orderFromRow(row))
	}
	return out, nil
}

// UpdateOrderStatus is an unconditional field update; it does not
// validate transition legality (domain.CanTransition is available to
// callers that want a policy).
func (m *Manager) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	if !domain.ValidStatus(status) {
		return domain.Order{}, domain.Validationf("unknown status %q", status)
	}
	n, err := m.store.Update(ctx, tableOrders,
		rowstore.Row{"status": string(status)},
		[]rowstore.Filter{rowstore.Eq("id", orderID)})
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}

	order, err := m.fetchOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	m.publish(notify.Event{
		Table:        tableOrders,
		Kind:         notify.KindUpdate,
		RestaurantID: order.RestaurantID,
		RowID:        order.ID,
		At:           time.Now().UTC(),
	})
	m.log.Info("order_status_updated", map[string]any{"order_id": orderID, "status": string(status)})
	return order, nil
}

// DeleteOrder removes the order bottom-up: captured add-ons, then line
// items, then the order row. Each phase completes before the next
// begins; a failure aborts and reports the phase, leaving whatever
// partial state that phase produced.
func (m *Manager) DeleteOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := m.fetchOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	items, err := m.fetchItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	err = saga.Run(ctx, "delete_order",
		saga.Phase{Name: "delete_item_addons", Run: func(ctx context.Context) error {
			for _, it := range items {
				if _, err := m.store.Delete(ctx, tableOrderItemAddOns,
					[]rowstore.Filter{rowstore.Eq("order_item_id", it.ID)}); err != nil {
					return err
				}
			}
			return nil
		}},
		saga.Phase{Name: "delete_items", Run: func(ctx context.Context) error {
			_, err := m.store.Delete(ctx, tableOrderItems, []rowstore.Filter{rowstore.Eq("order_id", orderID)})
			return err
		}},
		saga.Phase{Name: "delete_order", Run: func(ctx context.Context) error {
			_, err := m.store.Delete(ctx, tableOrders, []rowstore.Filter{rowstore.Eq("id", orderID)})
			return err
		}},
	)
	if err != nil {
		return domain.Order{}, err
	}

	m.publish(notify.Event{
		Table:        tableOrders,
		Kind:         notify.KindDelete,
		RestaurantID: order.RestaurantID,
		RowID:        order.ID,
		At:           time.Now().UTC(),
	})
	m.log.Info("order_deleted", map[string]any{"order_id": orderID, "items": len(items)})
	order.Items = items
	return order, nil
}

// Subscribe opens a live feed of change events for the restaurant's
// orders. Delivery is at-least-once and unordered; the handler must be
// idempotent. Cancelling the returned subscription stops delivery, but
// events that occur while disconnected are lost.
func (m *Manager) Subscribe(ctx context.Context, restaurantID string, fn notify.Handler) (*notify.Subscription, error) {
	return m.bus.Subscribe(ctx, tableOrders, restaurantID, fn)
}

func (m *Manager) fetchOrder(ctx context.Context, orderID string) (domain.Order, error) {
	rows, err := m.store.Select(ctx, rowstore.Query{
		Table:   tableOrders,
		Filters: []rowstore.Filter{rowstore.Eq("id", orderID)},
		Limit:   1,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch order: %w", err)
	}
	if len(rows) == 0 {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return orderFromRow(rows[0]), nil
}

func (m *Manager) fetchItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := m.store.Select(ctx, rowstore.Query{
		Table:   tableOrderItems,
		Filters: []rowstore.Filter{rowstore.Eq("order_id", orderID)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch order items: %w", err)
	}
	out := make([]domain.OrderItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, orderItemFromRow(row))
	}
	return out, nil
}

// publish is best-effort: the write already succeeded, so a broker
// failure is logged rather than surfaced as a write failure.
func (m *Manager) publish(ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.log.Error("change_publish_failed", err, map[string]any{
			"table":  ev.Table,
			"kind":   ev.Kind,
			"row_id": ev.RowID,
		})
	}
}
