package catalog

import (
	"tableside/internal/domain"
	"tableside/internal/rowstore"
)

// Logical table names behind the row store.
const (
	tableCategories         = "categories"
	tableMenuItems          = "menu_items"
	tableVariants           = "variants"
	tableAddOnGroups        = "addon_groups"
	tableAddOns             = "addons"
	tableItemAddOnGroups    = "item_addon_groups"
	tableVariantAddOnGroups = "variant_addon_groups"
	tableMigrations         = "schema_migrations"
)

func categoryFromRow(r rowstore.Row) domain.Category {
	return domain.Category{
		ID:           rowstore.String(r, "id"),
		RestaurantID: rowstore.String(r, "restaurant_id"),
		Name:         rowstore.String(r, "name"),
		DisplayOrder: rowstore.Int(r, "display_order"),
	}
}

func categoryToRow(c domain.Category) rowstore.Row {
	return rowstore.Row{
		"id":            c.ID,
		"restaurant_id": c.RestaurantID,
		"name":          c.Name,
		"display_order": c.DisplayOrder,
	}
}

func itemFromRow(r rowstore.Row) domain.MenuItem {
	return domain.MenuItem{
		ID:         rowstore.String(r, "id"),
		CategoryID: rowstore.String(r, "category_id"),
		Name:       rowstore.String(r, "name"),
		Price:      rowstore.Float(r, "price"),
		Available:  rowstore.Bool(r, "available"),
		ImageURL:   rowstore.String(r, "image_url"),
	}
}

func itemToRow(it domain.MenuItem) rowstore.Row {
	return rowstore.Row{
		"id":          it.ID,
		"category_id": it.CategoryID,
		"name":        it.Name,
		"price":       it.Price,
		"available":   it.Available,
		"image_url":   it.ImageURL,
	}
}

func variantFromRow(r rowstore.Row) domain.Variant {
	return domain.Variant{
		ID:           rowstore.String(r, "id"),
		ItemID:       rowstore.String(r, "item_id"),
		Name:         rowstore.String(r, "name"),
		PriceDelta:   rowstore.Float(r, "price_delta"),
		DisplayOrder: rowstore.Int(r, "display_order"),
	}
}

// variantToRow never writes the legacy addon_group_ids array column:
// the link table is canonical and the array only exists until
// Migrate has run.
func variantToRow(v domain.Variant) rowstore.Row {
	return rowstore.Row{
		"id":            v.ID,
		"item_id":       v.ItemID,
		"name":          v.Name,
		"price_delta":   v.PriceDelta,
		"display_order": v.DisplayOrder,
	}
}

func groupFromRow(r rowstore.Row) domain.AddOnGroup {
	return domain.AddOnGroup{
		ID:           rowstore.String(r, "id"),
		RestaurantID: rowstore.String(r, "restaurant_id"),
		Name:         rowstore.String(r, "name"),
		DisplayOrder: rowstore.Int(r, "display_order"),
	}
}

func groupToRow(g domain.AddOnGroup) rowstore.Row {
	return rowstore.Row{
		"id":            g.ID,
		"restaurant_id": g.RestaurantID,
		"name":          g.Name,
		"display_order": g.DisplayOrder,
	}
}

func addOnFromRow(r rowstore.Row) domain.AddOn {
	return domain.AddOn{
		ID:           rowstore.String(r, "id"),
		GroupID:      rowstore.String(r, "group_id"),
		Name:         rowstore.String(r, "name"),
		Price:        rowstore.Float(r, "price"),
		DisplayOrder: rowstore.Int(r, "display_order"),
	}
}

func addOnToRow(a domain.AddOn) rowstore.Row {
	return rowstore.Row{
		"id":            a.ID,
		"group_id":      a.GroupID,
		"name":          a.Name,
		"price":         a.Price,
		"display_order": a.DisplayOrder,
	}
}
