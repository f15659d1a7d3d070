package catalog

import (
	"context"
	"fmt"
	"time"

	"tableside/internal/rowstore"
	"tableside/internal/saga"
)

// migrationVariantLinks moves variant add-on-group associations from
// the legacy denormalized array column to the link table, which is the
// canonical representation. The two forms were historically treated as
// interchangeable; after this migration only the link table is read or
// written.
const migrationVariantLinks = "001_variant_addon_group_links"

// Migrate applies pending data migrations. Idempotent: a version row
// in schema_migrations marks each one done.
func (r *Repository) Migrate(ctx context.Context) error {
	applied, err := r.migrationApplied(ctx, migrationVariantLinks)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if applied {
		return nil
	}
	if err := r.migrateVariantLinks(ctx); err != nil {
		return err
	}
	if err := r.store.Insert(ctx, tableMigrations, []rowstore.Row{{
		"version":    migrationVariantLinks,
		"applied_at": time.Now().UTC(),
	}}); err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}
	r.log.Info("migration_applied", map[string]any{"version": migrationVariantLinks})
	return nil
}

func (r *Repository) migrationApplied(ctx context.Context, version string) (bool, error) {
	n, err := r.store.Count(ctx, tableMigrations, []rowstore.Filter{rowstore.Eq("version", version)})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// migrateVariantLinks rewrites one variant at a time: replace its link
// rows with the array contents, then clear the array. Order matters:
// the array is only cleared once the link rows exist, so a crash
// mid-migration leaves the variant re-migratable, not stripped.
func (r *Repository) migrateVariantLinks(ctx context.Context) error {
	rows, err := r.store.Select(ctx, rowstore.Query{Table: tableVariants})
	if err != nil {
		return fmt.Errorf("migrate: list variants: %w", err)
	}

	for _, row := range rows {
		groupIDs := rowstore.Strings(row, "addon_group_ids")
		if len(groupIDs) == 0 {
			continue
		}
		variantID := rowstore.String(row, "id")

		linkRows := make([]rowstore.Row, 0, len(groupIDs))
		for pos, gid := range groupIDs {
			linkRows = append(linkRows, rowstore.Row{
				"variant_id": variantID,
				"group_id":   gid,
				"position":   pos,
			})
		}

		err := saga.Run(ctx, "migrate_variant_links",
			saga.Phase{Name: "delete_links", Run: func(ctx context.Context) error {
				_, err := r.store.Delete(ctx, tableVariantAddOnGroups,
					[]rowstore.Filter{rowstore.Eq("variant_id", variantID)})
				return err
			}},
			saga.Phase{Name: "insert_links", Run: func(ctx context.Context) error {
				return r.store.Insert(ctx, tableVariantAddOnGroups, linkRows)
			}},
			saga.Phase{Name: "clear_array", Run: func(ctx context.Context) error {
				_, err := r.store.Update(ctx, tableVariants,
					rowstore.Row{"addon_group_ids": []string{}},
					[]rowstore.Filter{rowstore.Eq("id", variantID)})
				return err
			}},
		)
		if err != nil {
			return fmt.Errorf("migrate variant %s: %w", variantID, err)
		}
	}
	return nil
}
