package orders

import (
	"tableside/internal/domain"
	"tableside/internal/rowstore"
)

const (
	tableOrders          = "orders"
	tableOrderItems      = "order_items"
	tableOrderItemAddOns = "order_item_addons"
)

func orderFromRow(r rowstore.Row) domain.Order {
	return domain.Order{
		ID:           rowstore.String(r, "id"),
		RestaurantID: rowstore.String(r, "restaurant_id"),
		TableID:      rowstore.StringPtr(r, "table_id"),
		Number:       rowstore.String(r, "number"),
		Type:         rowstore.String(r, "type"),
		Status:       domain.OrderStatus(rowstore.String(r, "status")),
		TotalAmount:  rowstore.Float(r, "total_amount"),
		CreatedBy:    rowstore.String(r, "created_by"),
		CreatedAt:    rowstore.Time(r, "created_at"),
	}
}

func orderToRow(o domain.Order) rowstore.Row {
	row := rowstore.Row{
		"id":            o.ID,
		"restaurant_id": o.RestaurantID,
		"number":        o.Number,
		"type":          o.Type,
		"status":        string(o.Status),
		"total_amount":  o.TotalAmount,
		"created_by":    o.CreatedBy,
		"created_at":    o.CreatedAt,
	}
	if o.TableID != nil {
		row["table_id"] = *o.TableID
	} else {
		row["table_id"] = nil
	}
	return row
}

func orderItemFromRow(r rowstore.Row) domain.OrderItem {
	return domain.OrderItem{
		ID:         rowstore.String(r, "id"),
		OrderID:    rowstore.String(r, "order_id"),
		MenuItemID: rowstore.String(r, "menu_item_id"),
		Name:       rowstore.String(r, "name"),
		Quantity:   rowstore.Int(r, "quantity"),
		UnitPrice:  rowstore.Float(r, "unit_price"),
		Notes:      rowstore.String(r, "notes"),
	}
}

func orderItemToRow(it domain.OrderItem) rowstore.Row {
	return rowstore.Row{
		"id":           it.ID,
		"order_id":     it.OrderID,
		"menu_item_id": it.MenuItemID,
		"name":         it.Name,
		"quantity":     it.Quantity,
		"unit_price":   it.UnitPrice,
		"notes":        it.Notes,
	}
}

func orderItemAddOnFromRow(r rowstore.Row) domain.OrderItemAddOn {
	return domain.OrderItemAddOn{
		ID:          rowstore.String(r, "id"),
		OrderItemID: rowstore.String(r, "order_item_id"),
		Name:        rowstore.String(r, "name"),
		Price:       rowstore.Float(r, "price"),
		Quantity:    rowstore.Int(r, "quantity"),
	}
}

func orderItemAddOnToRow(a domain.OrderItemAddOn) rowstore.Row {
	return rowstore.Row{
		"id":            a.ID,
		"order_item_id": a.OrderItemID,
		"name":          a.Name,
		"price":         a.Price,
		"quantity":      a.Quantity,
	}
}
