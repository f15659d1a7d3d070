// Package rowstore is the boundary to the remote row-oriented store:
// per-table select/insert/update/delete with equality filters, single
// column ordering and an optional count-only mode. No transactions and
// no server-side cascade exist behind this interface; callers that
// need multi-table consistency must order their calls themselves.
package rowstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tableside/internal/domain"
)

// Row is one table row as a column map.
type Row map[string]any

// Filter is an equality predicate on a single column.
type Filter struct {
	Column string
	Value  any
}

func Eq(column string, value any) Filter { return Filter{Column: column, Value: value} }

// Query describes a select.
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string // empty = store order
	Descending bool
	Limit      int // 0 = no limit
}

type Client interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	// Count is the count-only mode: no rows are materialized.
	Count(ctx context.Context, table string, filters []Filter) (int, error)
	Insert(ctx context.Context, table string, rows []Row) error
	// Update returns the number of rows matched.
	Update(ctx context.Context, table string, set Row, filters []Filter) (int, error)
	// Delete returns the number of rows removed.
	Delete(ctx context.Context, table string, filters []Filter) (int, error)
}

// wrapUnavailable tags a transport-level failure with the store
// taxonomy while keeping the original chain intact.
func wrapUnavailable(op, table string, err error) error {
	return fmt.Errorf("%s %s: %w", op, table, errors.Join(domain.ErrStoreUnavailable, err))
}

// Column accessors. The store is schemaless on the client side, so
// values come back as whatever the driver produced; these coerce the
// shapes seen from pgx and the memory client.

func String(r Row, col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}

func StringPtr(r Row, col string) *string {
	if v, ok := r[col].(string); ok {
		return &v
	}
	return nil
}

func Int(r Row, col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func Float(r Row, col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func Bool(r Row, col string) bool {
	if v, ok := r[col].(bool); ok {
		return v
	}
	return false
}

func Time(r Row, col string) time.Time {
	if v, ok := r[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Strings reads a text-array column. pgx yields []any for arrays, the
// memory client stores []string directly.
func Strings(r Row, col string) []string {
	switch v := r[col].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
