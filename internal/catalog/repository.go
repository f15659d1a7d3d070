// Package catalog assembles the menu tree (categories, items,
// variants, add-on groups) from flat row-store tables and keeps the
// link tables consistent under saves and deletes. The store has no
// joins, so every level of the tree is a dependent fetch.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tableside/internal/blobstore"
	"tableside/internal/domain"
	"tableside/internal/logger"
	"tableside/internal/rowstore"
	"tableside/internal/saga"
)

const defaultHydrateLimit = 8

type Repository struct {
	store rowstore.Client
	log   *logger.Logger

	// hydrateLimit caps concurrent per-item and per-variant fetches
	// during ListItems.
	hydrateLimit int

	// saveMu serializes replace-all saves per parent id within this
	// process. Cross-process races stay last-writer-wins.
	saveMu sync.Map // string -> *sync.Mutex
}

func NewRepository(store rowstore.Client, log *logger.Logger, hydrateLimit int) *Repository {
	if hydrateLimit <= 0 {
		hydrateLimit = defaultHydrateLimit
	}
	return &Repository{store: store, log: log, hydrateLimit: hydrateLimit}
}

func (r *Repository) lock(id string) func() {
	muAny, _ := r.saveMu.LoadOrStore(id, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ListCategories returns the restaurant's categories sorted by display
// order ascending.
func (r *Repository) ListCategories(ctx context.Context, restaurantID string) ([]domain.Category, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableCategories,
		Filters: []rowstore.Filter{rowstore.Eq("restaurant_id", restaurantID)},
		OrderBy: "display_order",
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, categoryFromRow(row))
	}
	return out, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.Name == "" {
		return domain.Category{}, domain.Validationf("category name is required")
	}
	if c.RestaurantID == "" {
		return domain.Category{}, domain.Validationf("restaurant id is required")
	}
	c.ID = uuid.NewString()
	if err := r.store.Insert(ctx, tableCategories, []rowstore.Row{categoryToRow(c)}); err != nil {
		return domain.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.Name == "" {
		return domain.Category{}, domain.Validationf("category name is required")
	}
	n, err := r.store.Update(ctx, tableCategories,
		rowstore.Row{"name": c.Name, "display_order": c.DisplayOrder},
		[]rowstore.Filter{rowstore.Eq("id", c.ID)})
	if err != nil {
		return domain.Category{}, fmt.Errorf("update category: %w", err)
	}
	if n == 0 {
		return domain.Category{}, fmt.Errorf("update category %s: %w", c.ID, domain.ErrNotFound)
	}
	return c, nil
}

// DeleteCategory refuses to delete a category that still has items:
// the store would happily leave them orphaned otherwise.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	n, err := r.store.Count(ctx, tableMenuItems, []rowstore.Filter{rowstore.Eq("category_id", id)})
	if err != nil {
		return fmt.Errorf("delete category: count items: %w", err)
	}
	if n > 0 {
		return domain.Validationf("category %s still has %d items", id, n)
	}
	deleted, err := r.store.Delete(ctx, tableCategories, []rowstore.Filter{rowstore.Eq("id", id)})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("delete category %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListItems returns the category's items with variants and add-on
// group links hydrated. Hydration fans out with a bounded concurrency
// limit; a failed branch is logged and degrades to an empty slice
// instead of aborting the tree.
func (r *Repository) ListItems(ctx context.Context, categoryID string) ([]domain.MenuItem, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableMenuItems,
		Filters: []rowstore.Filter{rowstore.Eq("category_id", categoryID)},
		OrderBy: "name",
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]domain.MenuItem, len(rows))
	for i, row := range rows {
		items[i] = itemFromRow(row)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.hydrateLimit)
	for i := range items {
		i := i
		g.Go(func() error {
			r.hydrateItem(gctx, &items[i])
			return nil // branches never cancel siblings
		})
	}
	_ = g.Wait()
	return items, nil
}

func (r *Repository) hydrateItem(ctx context.Context, it *domain.MenuItem) {
	groups, err := r.readLinks(ctx, tableItemAddOnGroups, "item_id", it.ID)
	if err != nil {
		r.log.Error("hydrate_item_groups_failed", err, map[string]any{"item_id": it.ID})
		groups = []string{}
	}
	it.AddOnGroupIDs = groups

	variants, err := r.listVariants(ctx, it.ID)
	if err != nil {
		r.log.Error("hydrate_variants_failed", err, map[string]any{"item_id": it.ID})
		it.Variants = []domain.Variant{}
		return
	}
	for i := range variants {
		vg, err := r.readLinks(ctx, tableVariantAddOnGroups, "variant_id", variants[i].ID)
		if err != nil {
			r.log.Error("hydrate_variant_groups_failed", err, map[string]any{"variant_id": variants[i].ID})
			vg = []string{}
		}
		variants[i].AddOnGroupIDs = vg
	}
	it.Variants = variants
}

func (r *Repository) listVariants(ctx context.Context, itemID string) ([]domain.Variant, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableVariants,
		Filters: []rowstore.Filter{rowstore.Eq("item_id", itemID)},
		OrderBy: "display_order",
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Variant, 0, len(rows))
	for _, row := range rows {
		out = append(out, variantFromRow(row))
	}
	return out, nil
}

func (r *Repository) CreateItem(ctx context.Context, it domain.MenuItem) (domain.MenuItem, error) {
	if it.Name == "" {
		return domain.MenuItem{}, domain.Validationf("item name is required")
	}
	if it.CategoryID == "" {
		return domain.MenuItem{}, domain.Validationf("category id is required")
	}
	it.ID = uuid.NewString()
	if err := r.store.Insert(ctx, tableMenuItems, []rowstore.Row{itemToRow(it)}); err != nil {
		return domain.MenuItem{}, fmt.Errorf("create item: %w", err)
	}
	return it, nil
}

func (r *Repository) UpdateItem(ctx context.Context, it domain.MenuItem) (domain.MenuItem, error) {
	if it.Name == "" {
		return domain.MenuItem{}, domain.Validationf("item name is required")
	}
	n, err := r.store.Update(ctx, tableMenuItems, rowstore.Row{
		"name":      it.Name,
		"price":     it.Price,
		"available": it.Available,
		"image_url": it.ImageURL,
	}, []rowstore.Filter{rowstore.Eq("id", it.ID)})
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("update item: %w", err)
	}
	if n == 0 {
		return domain.MenuItem{}, fmt.Errorf("update item %s: %w", it.ID, domain.ErrNotFound)
	}
	return it, nil
}

// DeleteItem removes the item and everything hanging off it, children
// first so a failure never leaves rows pointing at a missing parent.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	variants, err := r.listVariants(ctx, id)
	if err != nil {
		return fmt.Errorf("delete item: list variants: %w", err)
	}

	return saga.Run(ctx, "delete_item",
		saga.Phase{Name: "delete_variant_links", Run: func(ctx context.Context) error {
			for _, v := range variants {
				if _, err := r.store.Delete(ctx, tableVariantAddOnGroups,
					[]rowstore.Filter{rowstore.Eq("variant_id", v.ID)}); err != nil {
					return err
				}
			}
			return nil
		}},
		saga.Phase{Name: "delete_variants", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableVariants, []rowstore.Filter{rowstore.Eq("item_id", id)})
			return err
		}},
		saga.Phase{Name: "delete_item_links", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableItemAddOnGroups, []rowstore.Filter{rowstore.Eq("item_id", id)})
			return err
		}},
		saga.Phase{Name: "delete_item", Run: func(ctx context.Context) error {
			n, err := r.store.Delete(ctx, tableMenuItems, []rowstore.Filter{rowstore.Eq("id", id)})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
			}
			return nil
		}},
	)
}

// SetItemImage uploads the image bytes and points the item at the
// returned URL. The previous image, if any, is deleted afterwards; a
// failed cleanup is logged, not surfaced, since the item already
// references the new URL.
func (r *Repository) SetItemImage(ctx context.Context, blobs blobstore.Store, itemID string, data []byte) (string, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableMenuItems,
		Filters: []rowstore.Filter{rowstore.Eq("id", itemID)},
		Limit:   1,
	})
	if err != nil {
		return "", fmt.Errorf("set item image: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	oldURL := rowstore.String(rows[0], "image_url")

	url, err := blobs.Upload(ctx, data, fmt.Sprintf("items/%s/%s", itemID, uuid.NewString()))
	if err != nil {
		return "", fmt.Errorf("set item image: upload: %w", err)
	}
	if _, err := r.store.Update(ctx, tableMenuItems,
		rowstore.Row{"image_url": url},
		[]rowstore.Filter{rowstore.Eq("id", itemID)}); err != nil {
		return "", fmt.Errorf("set item image: %w", err)
	}
	if oldURL != "" {
		if err := blobs.Delete(ctx, oldURL); err != nil {
			r.log.Error("old_image_delete_failed", err, map[string]any{"item_id": itemID, "url": oldURL})
		}
	}
	return url, nil
}

// SaveVariants replaces every variant of the item with the given list.
// Display order is the list position; variant ids are regenerated, so
// old ids are invalid after this returns. Same-item saves are
// serialized in-process.
func (r *Repository) SaveVariants(ctx context.Context, itemID string, variants []domain.Variant) error {
	unlock := r.lock(itemID)
	defer unlock()

	old, err := r.listVariants(ctx, itemID)
	if err != nil {
		return fmt.Errorf("save variants: %w", err)
	}

	rows := make([]rowstore.Row, 0, len(variants))
	var linkRows []rowstore.Row
	for i := range variants {
		v := variants[i]
		v.ItemID = itemID
		v.ID = uuid.NewString()
		v.DisplayOrder = i
		rows = append(rows, variantToRow(v))
		for pos, gid := range v.AddOnGroupIDs {
			linkRows = append(linkRows, rowstore.Row{
				"variant_id": v.ID,
				"group_id":   gid,
				"position":   pos,
			})
		}
	}

	return saga.Run(ctx, "save_variants",
		saga.Phase{Name: "delete_old_links", Run: func(ctx context.Context) error {
			for _, v := range old {
				if _, err := r.store.Delete(ctx, tableVariantAddOnGroups,
					[]rowstore.Filter{rowstore.Eq("variant_id", v.ID)}); err != nil {
					return err
				}
			}
			return nil
		}},
		saga.Phase{Name: "delete_old_variants", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableVariants, []rowstore.Filter{rowstore.Eq("item_id", itemID)})
			return err
		}},
		saga.Phase{Name: "insert_variants", Run: func(ctx context.Context) error {
			return r.store.Insert(ctx, tableVariants, rows)
		}},
		saga.Phase{Name: "insert_links", Run: func(ctx context.Context) error {
			if len(linkRows) == 0 {
				return nil
			}
			return r.store.Insert(ctx, tableVariantAddOnGroups, linkRows)
		}},
	)
}

// SetItemAddOnGroups replaces the item's group links. Link table only:
// this call path never touches the legacy array form.
func (r *Repository) SetItemAddOnGroups(ctx context.Context, itemID string, groupIDs []string) error {
	return r.replaceLinks(ctx, "set_item_addon_groups", tableItemAddOnGroups, "item_id", itemID, groupIDs)
}

// SetVariantAddOnGroups replaces the variant's group links.
func (r *Repository) SetVariantAddOnGroups(ctx context.Context, variantID string, groupIDs []string) error {
	return r.replaceLinks(ctx, "set_variant_addon_groups", tableVariantAddOnGroups, "variant_id", variantID, groupIDs)
}

func (r *Repository) ItemAddOnGroups(ctx context.Context, itemID string) ([]string, error) {
	return r.readLinks(ctx, tableItemAddOnGroups, "item_id", itemID)
}

func (r *Repository) VariantAddOnGroups(ctx context.Context, variantID string) ([]string, error) {
	return r.readLinks(ctx, tableVariantAddOnGroups, "variant_id", variantID)
}

func (r *Repository) replaceLinks(ctx context.Context, op, table, ownerCol, ownerID string, groupIDs []string) error {
	unlock := r.lock(ownerID)
	defer unlock()

	rows := make([]rowstore.Row, 0, len(groupIDs))
	for pos, gid := range groupIDs {
		rows = append(rows, rowstore.Row{ownerCol: ownerID, "group_id": gid, "position": pos})
	}
	return saga.Run(ctx, op,
		saga.Phase{Name: "delete_links", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, table, []rowstore.Filter{rowstore.Eq(ownerCol, ownerID)})
			return err
		}},
		saga.Phase{Name: "insert_links", Run: func(ctx context.Context) error {
			if len(rows) == 0 {
				return nil
			}
			return r.store.Insert(ctx, table, rows)
		}},
	)
}

func (r *Repository) readLinks(ctx context.Context, table, ownerCol, ownerID string) ([]string, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   table,
		Filters: []rowstore.Filter{rowstore.Eq(ownerCol, ownerID)},
		OrderBy: "position",
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowstore.String(row, "group_id"))
	}
	return out, nil
}

// ListAddOnGroups returns the restaurant's groups with linked-item
// counts, computed through the store's count-only mode.
func (r *Repository) ListAddOnGroups(ctx context.Context, restaurantID string) ([]domain.AddOnGroup, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableAddOnGroups,
		Filters: []rowstore.Filter{rowstore.Eq("restaurant_id", restaurantID)},
		OrderBy: "display_order",
	})
	if err != nil {
		return nil, fmt.Errorf("list addon groups: %w", err)
	}
	out := make([]domain.AddOnGroup, 0, len(rows))
	for _, row := range rows {
		g := groupFromRow(row)
		n, err := r.store.Count(ctx, tableItemAddOnGroups, []rowstore.Filter{rowstore.Eq("group_id", g.ID)})
		if err != nil {
			r.log.Error("group_item_count_failed", err, map[string]any{"group_id": g.ID})
		} else {
			g.ItemCount = n
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *Repository) GetAddOnGroup(ctx context.Context, id string) (domain.AddOnGroup, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableAddOnGroups,
		Filters: []rowstore.Filter{rowstore.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		return domain.AddOnGroup{}, fmt.Errorf("get addon group: %w", err)
	}
	if len(rows) == 0 {
		return domain.AddOnGroup{}, fmt.Errorf("addon group %s: %w", id, domain.ErrNotFound)
	}
	return groupFromRow(rows[0]), nil
}

func (r *Repository) CreateAddOnGroup(ctx context.Context, g domain.AddOnGroup) (domain.AddOnGroup, error) {
	if g.Name == "" {
		return domain.AddOnGroup{}, domain.Validationf("group name is required")
	}
	if g.RestaurantID == "" {
		return domain.AddOnGroup{}, domain.Validationf("restaurant id is required")
	}
	g.ID = uuid.NewString()
	if err := r.store.Insert(ctx, tableAddOnGroups, []rowstore.Row{groupToRow(g)}); err != nil {
		return domain.AddOnGroup{}, fmt.Errorf("create addon group: %w", err)
	}
	return g, nil
}

func (r *Repository) UpdateAddOnGroup(ctx context.Context, g domain.AddOnGroup) (domain.AddOnGroup, error) {
	if g.Name == "" {
		return domain.AddOnGroup{}, domain.Validationf("group name is required")
	}
	n, err := r.store.Update(ctx, tableAddOnGroups,
		rowstore.Row{"name": g.Name, "display_order": g.DisplayOrder},
		[]rowstore.Filter{rowstore.Eq("id", g.ID)})
	if err != nil {
		return domain.AddOnGroup{}, fmt.Errorf("update addon group: %w", err)
	}
	if n == 0 {
		return domain.AddOnGroup{}, fmt.Errorf("update addon group %s: %w", g.ID, domain.ErrNotFound)
	}
	return g, nil
}

// DeleteAddOnGroup deletes the group's add-ons and link rows before
// the group row itself. The store has no cascade; doing this in any
// other order can leave add-ons with no owning group.
func (r *Repository) DeleteAddOnGroup(ctx context.Context, id string) error {
	if _, err := r.GetAddOnGroup(ctx, id); err != nil {
		return err
	}
	return saga.Run(ctx, "delete_addon_group",
		saga.Phase{Name: "delete_addons", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableAddOns, []rowstore.Filter{rowstore.Eq("group_id", id)})
			return err
		}},
		saga.Phase{Name: "delete_item_links", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableItemAddOnGroups, []rowstore.Filter{rowstore.Eq("group_id", id)})
			return err
		}},
		saga.Phase{Name: "delete_variant_links", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableVariantAddOnGroups, []rowstore.Filter{rowstore.Eq("group_id", id)})
			return err
		}},
		saga.Phase{Name: "delete_group", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableAddOnGroups, []rowstore.Filter{rowstore.Eq("id", id)})
			return err
		}},
	)
}

// ListAddOns returns the group's add-ons sorted by display order.
func (r *Repository) ListAddOns(ctx context.Context, groupID string) ([]domain.AddOn, error) {
	rows, err := r.store.Select(ctx, rowstore.Query{
		Table:   tableAddOns,
		Filters: []rowstore.Filter{rowstore.Eq("group_id", groupID)},
		OrderBy: "display_order",
	})
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}
	out := make([]domain.AddOn, 0, len(rows))
	for _, row := range rows {
		out = append(out, addOnFromRow(row))
	}
	return out, nil
}

// ReplaceAddOns swaps the group's add-ons for the given list, same
// replace-all-children semantics as SaveVariants.
func (r *Repository) ReplaceAddOns(ctx context.Context, groupID string, addOns []domain.AddOn) error {
	unlock := r.lock(groupID)
	defer unlock()

	rows := make([]rowstore.Row, 0, len(addOns))
	for i := range addOns {
		a := addOns[i]
		a.GroupID = groupID
		a.ID = uuid.NewString()
		a.DisplayOrder = i
		rows = append(rows, addOnToRow(a))
	}
	return saga.Run(ctx, "replace_addons",
		saga.Phase{Name: "delete_old_addons", Run: func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, tableAddOns, []rowstore.Filter{rowstore.Eq("group_id", groupID)})
			return err
		}},
		saga.Phase{Name: "insert_addons", Run: func(ctx context.Context) error {
			if len(rows) == 0 {
				return nil
			}
			return r.store.Insert(ctx, tableAddOns, rows)
		}},
	)
}
