package rowstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Client for tests and local runs. One mutex
// guards everything, so each call is atomic, but a multi-call
// sequence is exactly as interleavable as it is against the real
// store.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

func (m *Memory) Select(_ context.Context, q Query) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for _, row := range m.tables[q.Table] {
		if matches(row, q.Filters) {
			out = append(out, cloneRow(row))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Count(_ context.Context, table string, filters []Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Insert(_ context.Context, table string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		m.tables[table] = append(m.tables[table], cloneRow(row))
	}
	return nil
}

func (m *Memory) Update(_ context.Context, table string, set Row, filters []Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			for k, v := range set {
				row[k] = v
			}
			n++
		}
	}
	return n, nil
}

func (m *Memory) Delete(_ context.Context, table string, filters []Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.tables[table][:0]
	n := 0
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.tables[table] = kept
	return n, nil
}

func matches(row Row, filters []Filter) bool {
	for _, f := range filters {
		if compare(row[f.Column], f.Value) != 0 {
			return false
		}
	}
	return true
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		out[k] = v
	}
	return out
}

// compare orders heterogeneous column values; numeric types collapse
// to float64 so int and int64 literals stay interchangeable in tests.
func compare(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	if b == nil {
		return 1
	}
	return -1
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
