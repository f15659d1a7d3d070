package domain

import "time"

// Category groups menu items for presentation. DisplayOrder drives the
// sort on reads; duplicates are tolerated.
type Category struct {
	ID           string
	RestaurantID string
	Name         string
	DisplayOrder int
}

// MenuItem is a sellable catalog entry. Variants are hydrated on list
// reads; AddOnGroupIDs come from the item link table.
type MenuItem struct {
	ID            string
	CategoryID    string
	Name          string
	Price         float64
	Available     bool
	ImageURL      string
	Variants      []Variant
	AddOnGroupIDs []string
}

// Variant is a purchasable variation of an item (size, crust, ...).
// PriceDelta is added to the item price. Variant ids are not stable
// across saves: SaveVariants replaces every row for the item.
type Variant struct {
	ID            string
	ItemID        string
	Name          string
	PriceDelta    float64
	DisplayOrder  int
	AddOnGroupIDs []string
}

// AddOnGroup owns an ordered set of add-ons and is linked to items and
// variants through link tables.
type AddOnGroup struct {
	ID           string
	RestaurantID string
	Name         string
	DisplayOrder int
	// ItemCount is how many menu items link to the group. Filled by
	// ListAddOnGroups, zero elsewhere.
	ItemCount int
}

type AddOn struct {
	ID           string
	GroupID      string
	Name         string
	Price        float64
	DisplayOrder int
}

// Table is a restaurant-scoped seating unit. Orders reference it but
// never cascade into it.
type Table struct {
	ID           string
	RestaurantID string
	Name         string
	Seats        int
}

type Order struct {
	ID           string
	RestaurantID string
	TableID      *string // nil for takeout / delivery
	Number       string
	Type         string
	Status       OrderStatus
	TotalAmount  float64
	CreatedBy    string
	CreatedAt    time.Time
	Items        []OrderItem
}

// OrderItem captures the unit price at order time. Later catalog edits
// never change historical orders.
type OrderItem struct {
	ID         string
	OrderID    string
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  float64
	Notes      string
	AddOns     []OrderItemAddOn
}

// OrderItemAddOn is denormalized the same way: name and price are
// copies taken when the order was placed.
type OrderItemAddOn struct {
	ID          string
	OrderItemID string
	Name        string
	Price       float64
	Quantity    int
}
