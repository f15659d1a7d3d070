package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"tableside/internal/blobstore"
	"tableside/internal/domain"
	"tableside/internal/logger"
	"tableside/internal/rowstore"
)

// flakyStore wraps a Client and fails selected calls, standing in for
// a flaking remote store.
type flakyStore struct {
	rowstore.Client
	fail func(op, table string) error
}

func (f *flakyStore) Select(ctx context.Context, q rowstore.Query) ([]rowstore.Row, error) {
	if err := f.check("select", q.Table); err != nil {
		return nil, err
	}
	return f.Client.Select(ctx, q)
}

func (f *flakyStore) Count(ctx context.Context, table string, filters []rowstore.Filter) (int, error) {
	if err := f.check("count", table); err != nil {
		return 0, err
	}
	return f.Client.Count(ctx, table, filters)
}

func (f *flakyStore) Insert(ctx context.Context, table string, rows []rowstore.Row) error {
	if err := f.check("insert", table); err != nil {
		return err
	}
	return f.Client.Insert(ctx, table, rows)
}

func (f *flakyStore) Update(ctx context.Context, table string, set rowstore.Row, filters []rowstore.Filter) (int, error) {
	if err := f.check("update", table); err != nil {
		return 0, err
	}
	return f.Client.Update(ctx, table, set, filters)
}

func (f *flakyStore) Delete(ctx context.Context, table string, filters []rowstore.Filter) (int, error) {
	if err := f.check("delete", table); err != nil {
		return 0, err
	}
	return f.Client.Delete(ctx, table, filters)
}

func (f *flakyStore) check(op, table string) error {
	if f.fail == nil {
		return nil
	}
	return f.fail(op, table)
}

func storeDown(failOp, failTable string) func(op, table string) error {
	return func(op, table string) error {
		if op == failOp && table == failTable {
			return fmt.Errorf("%s %s: %w", op, table, domain.ErrStoreUnavailable)
		}
		return nil
	}
}

func newTestRepo(t *testing.T) (*Repository, *rowstore.Memory) {
	t.Helper()
	store := rowstore.NewMemory()
	return NewRepository(store, logger.NewWithWriter("catalog-test", io.Discard), 4), store
}

func TestListCategoriesSortedByDisplayOrder(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for _, c := range []domain.Category{
		{RestaurantID: "r1", Name: "Desserts", DisplayOrder: 5},
		{RestaurantID: "r1", Name: "Starters", DisplayOrder: 1},
		{RestaurantID: "r1", Name: "Mains", DisplayOrder: 3},
		{RestaurantID: "r2", Name: "Other", DisplayOrder: 0},
	} {
		if _, err := repo.CreateCategory(ctx, c); err != nil {
			t.Fatalf("create category: %v", err)
		}
	}

	cats, err := repo.ListCategories(ctx, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(cats))
	}
	for i := 1; i < len(cats); i++ {
		if cats[i-1].DisplayOrder > cats[i].DisplayOrder {
			t.Fatalf("display order not non-decreasing: %+v", cats)
		}
	}
}

func TestListCategoriesEmptyAndUnavailable(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	cats, err := repo.ListCategories(ctx, "nobody")
	if err != nil || len(cats) != 0 {
		t.Fatalf("expected empty list, got %v %v", cats, err)
	}

	down := &flakyStore{Client: rowstore.NewMemory(), fail: storeDown("select", tableCategories)}
	repo2 := NewRepository(down, logger.NewWithWriter("catalog-test", io.Discard), 4)
	if _, err := repo2.ListCategories(ctx, "r1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCategoryValidationAndDelete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateCategory(ctx, domain.Category{RestaurantID: "r1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty name should fail validation, got %v", err)
	}

	cat, err := repo.CreateCategory(ctx, domain.Category{RestaurantID: "r1", Name: "Mains"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: cat.ID, Name: "Pasta", Price: 11}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	// A category with items must not be deletable.
	if err := repo.DeleteCategory(ctx, cat.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation refusal, got %v", err)
	}

	if err := repo.DeleteCategory(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound for unknown id, got %v", err)
	}
}

func TestSaveVariantsReplaceAll(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	item, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: "c1", Name: "Pizza", Price: 9})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	first := []domain.Variant{{Name: "Small"}, {Name: "Medium"}, {Name: "Large"}}
	if err := repo.SaveVariants(ctx, item.ID, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := []domain.Variant{{Name: "Regular", PriceDelta: 0}, {Name: "Family", PriceDelta: 6}}
	if err := repo.SaveVariants(ctx, item.ID, second); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := repo.listVariants(ctx, item.ID)
	if err != nil {
		t.Fatalf("list variants: %v", err)
	}
	if len(got) != len(second) {
		t.Fatalf("expected exactly %d variants after replace, got %d", len(second), len(got))
	}
	for i, v := range got {
		if v.DisplayOrder != i {
			t.Fatalf("display order must equal list position: %+v", got)
		}
		if v.Name != second[i].Name {
			t.Fatalf("variant %d: got %q want %q", i, v.Name, second[i].Name)
		}
	}
}

func TestVariantAddOnGroupsRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetVariantAddOnGroups(ctx, "v1", []string{"g1", "g2"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := repo.VariantAddOnGroups(ctx, "v1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	asSet := map[string]bool{}
	for _, g := range got {
		asSet[g] = true
	}
	if len(asSet) != 2 || !asSet["g1"] || !asSet["g2"] {
		t.Fatalf("round trip mismatch: %v", got)
	}

	// Replacing overwrites, never merges.
	if err := repo.SetVariantAddOnGroups(ctx, "v1", []string{"g3"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = repo.VariantAddOnGroups(ctx, "v1")
	if len(got) != 1 || got[0] != "g3" {
		t.Fatalf("expected [g3], got %v", got)
	}
}

func TestItemAddOnGroupsRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetItemAddOnGroups(ctx, "i1", []string{"g2", "g1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := repo.ItemAddOnGroups(ctx, "i1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Position column preserves caller order.
	if len(got) != 2 || got[0] != "g2" || got[1] != "g1" {
		t.Fatalf("expected [g2 g1], got %v", got)
	}
}

func TestDeleteAddOnGroupCascade(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	group, err := repo.CreateAddOnGroup(ctx, domain.AddOnGroup{RestaurantID: "r1", Name: "Toppings"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	addOns := []domain.AddOn{{Name: "Cheese", Price: 1}, {Name: "Bacon", Price: 2}, {Name: "Olives", Price: 1}}
	if err := repo.ReplaceAddOns(ctx, group.ID, addOns); err != nil {
		t.Fatalf("replace addons: %v", err)
	}
	if err := repo.SetItemAddOnGroups(ctx, "i1", []string{group.ID}); err != nil {
		t.Fatalf("link item: %v", err)
	}

	if err := repo.DeleteAddOnGroup(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	if n, _ := store.Count(ctx, tableAddOns, []rowstore.Filter{rowstore.Eq("group_id", group.ID)}); n != 0 {
		t.Fatalf("expected all 3 addons gone, %d remain", n)
	}
	if n, _ := store.Count(ctx, tableItemAddOnGroups, []rowstore.Filter{rowstore.Eq("group_id", group.ID)}); n != 0 {
		t.Fatalf("item links must be gone")
	}
	if _, err := repo.GetAddOnGroup(ctx, group.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestDeleteAddOnGroupPhaseOrder(t *testing.T) {
	mem := rowstore.NewMemory()
	flaky := &flakyStore{Client: mem, fail: storeDown("delete", tableAddOnGroups)}
	repo := NewRepository(flaky, logger.NewWithWriter("catalog-test", io.Discard), 4)
	ctx := context.Background()

	group, err := repo.CreateAddOnGroup(ctx, domain.AddOnGroup{RestaurantID: "r1", Name: "Sauces"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := repo.ReplaceAddOns(ctx, group.ID, []domain.AddOn{{Name: "Garlic"}}); err != nil {
		t.Fatalf("replace addons: %v", err)
	}

	err = repo.DeleteAddOnGroup(ctx, group.ID)
	var pw *domain.PartialWriteError
	if !errors.As(err, &pw) || pw.Phase != "delete_group" {
		t.Fatalf("expected failure in delete_group phase, got %v", err)
	}
	// Add-ons were deleted before the group row was attempted.
	if n, _ := mem.Count(ctx, tableAddOns, []rowstore.Filter{rowstore.Eq("group_id", group.ID)}); n != 0 {
		t.Fatalf("addons must be removed before the group row")
	}
	if _, err := repo.GetAddOnGroup(ctx, group.ID); err != nil {
		t.Fatalf("group row must survive the failed phase: %v", err)
	}
}

func TestListItemsHydratesTree(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	item, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: "c1", Name: "Burger", Price: 8})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	variants := []domain.Variant{
		{Name: "Single", AddOnGroupIDs: []string{"g1"}},
		{Name: "Double", AddOnGroupIDs: []string{"g1", "g2"}},
	}
	if err := repo.SaveVariants(ctx, item.ID, variants); err != nil {
		t.Fatalf("save variants: %v", err)
	}
	if err := repo.SetItemAddOnGroups(ctx, item.ID, []string{"g9"}); err != nil {
		t.Fatalf("set item groups: %v", err)
	}

	items, err := repo.ListItems(ctx, "c1")
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	got := items[0]
	if len(got.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(got.Variants))
	}
	if len(got.AddOnGroupIDs) != 1 || got.AddOnGroupIDs[0] != "g9" {
		t.Fatalf("item groups: %v", got.AddOnGroupIDs)
	}
	if len(got.Variants[1].AddOnGroupIDs) != 2 {
		t.Fatalf("variant groups not hydrated: %+v", got.Variants[1])
	}
}

func TestListItemsPartialHydration(t *testing.T) {
	mem := rowstore.NewMemory()
	flaky := &flakyStore{Client: mem}
	repo := NewRepository(flaky, logger.NewWithWriter("catalog-test", io.Discard), 4)
	ctx := context.Background()

	item, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: "c1", Name: "Wrap", Price: 6})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if err := repo.SaveVariants(ctx, item.ID, []domain.Variant{{Name: "Plain", AddOnGroupIDs: []string{"g1"}}}); err != nil {
		t.Fatalf("save variants: %v", err)
	}

	// Group resolution flakes; the tree must still come back.
	flaky.fail = storeDown("select", tableVariantAddOnGroups)
	items, err := repo.ListItems(ctx, "c1")
	if err != nil {
		t.Fatalf("partial hydration must not abort the tree: %v", err)
	}
	if len(items) != 1 || len(items[0].Variants) != 1 {
		t.Fatalf("variants must survive: %+v", items)
	}
	if len(items[0].Variants[0].AddOnGroupIDs) != 0 {
		t.Fatalf("failed group resolution should default to empty, got %v", items[0].Variants[0].AddOnGroupIDs)
	}
}

func TestSaveVariantsConcurrentNoMerge(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	item, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: "c1", Name: "Tea", Price: 2})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	listA := []domain.Variant{{Name: "A1"}, {Name: "A2"}, {Name: "A3"}}
	listB := []domain.Variant{{Name: "B1"}, {Name: "B2"}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = repo.SaveVariants(ctx, item.ID, listA) }()
	go func() { defer wg.Done(); _ = repo.SaveVariants(ctx, item.ID, listB) }()
	wg.Wait()

	got, err := repo.listVariants(ctx, item.ID)
	if err != nil {
		t.Fatalf("list variants: %v", err)
	}
	names := make([]string, len(got))
	for i, v := range got {
		names[i] = v.Name
	}
	matches := func(want []domain.Variant) bool {
		if len(names) != len(want) {
			return false
		}
		for i := range want {
			if names[i] != want[i].Name {
				return false
			}
		}
		return true
	}
	if !matches(listA) && !matches(listB) {
		t.Fatalf("final state must equal exactly one input list, got %v", names)
	}
}

func TestDeleteItemRemovesChildrenFirst(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	item, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: "c1", Name: "Soup", Price: 4})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if err := repo.SaveVariants(ctx, item.ID, []domain.Variant{{Name: "Cup", AddOnGroupIDs: []string{"g1"}}}); err != nil {
		t.Fatalf("save variants: %v", err)
	}
	if err := repo.SetItemAddOnGroups(ctx, item.ID, []string{"g1"}); err != nil {
		t.Fatalf("set groups: %v", err)
	}

	if err := repo.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	for _, table := range []string{tableVariants, tableMenuItems} {
		if n, _ := store.Count(ctx, table, nil); n != 0 {
			t.Fatalf("%s not empty after delete", table)
		}
	}
	if n, _ := store.Count(ctx, tableVariantAddOnGroups, nil); n != 0 {
		t.Fatalf("variant links not cleaned up")
	}

	if err := repo.DeleteItem(ctx, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}

func TestSetItemImage(t *testing.T) {
	repo, store := newTestRepo(t)
	blobs := blobstore.NewMemory()
	ctx := context.Background()

	item, err := repo.CreateItem(ctx, domain.MenuItem{CategoryID: "c1", Name: "Cake", Price: 5})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	first, err := repo.SetItemImage(ctx, blobs, item.ID, []byte("v1"))
	if err != nil {
		t.Fatalf("set image: %v", err)
	}
	rows, _ := store.Select(ctx, rowstore.Query{Table: tableMenuItems, Filters: []rowstore.Filter{rowstore.Eq("id", item.ID)}})
	if rowstore.String(rows[0], "image_url") != first {
		t.Fatalf("item not pointing at uploaded image")
	}

	// Replacing the image removes the old blob.
	second, err := repo.SetItemImage(ctx, blobs, item.ID, []byte("v2"))
	if err != nil {
		t.Fatalf("replace image: %v", err)
	}
	if second == first {
		t.Fatalf("new upload must mint a new url")
	}
	if err := blobs.Delete(ctx, first); err == nil {
		t.Fatalf("old blob should already be gone")
	}

	if _, err := repo.SetItemImage(ctx, blobs, "ghost", []byte("x")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListAddOnGroupsItemCounts(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	g1, _ := repo.CreateAddOnGroup(ctx, domain.AddOnGroup{RestaurantID: "r1", Name: "Sizes", DisplayOrder: 0})
	g2, _ := repo.CreateAddOnGroup(ctx, domain.AddOnGroup{RestaurantID: "r1", Name: "Extras", DisplayOrder: 1})
	_ = repo.SetItemAddOnGroups(ctx, "i1", []string{g1.ID})
	_ = repo.SetItemAddOnGroups(ctx, "i2", []string{g1.ID, g2.ID})

	groups, err := repo.ListAddOnGroups(ctx, "r1")
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].ItemCount != 2 || groups[1].ItemCount != 1 {
		t.Fatalf("item counts wrong: %+v", groups)
	}
}
