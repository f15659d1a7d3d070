package rowstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig mirrors the database section of the config file.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Postgres implements Client over a pgx pool. Table and column names
// are supplied by the repository packages, never by callers outside
// this module, so they are interpolated directly; values always go
// through positional arguments.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres dials with a retry loop: the store is remote and may
// come up after us.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		pool, err := pgxpool.New(ctx, dsn)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = pool.Ping(pctx)
			cancel()
			if err == nil {
				return &Postgres{pool: pool}, nil
			}
			pool.Close()
		}
		lastErr = err

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres connect canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", maxRetries, lastErr)
}

func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Select(ctx context.Context, q Query) ([]Row, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s", q.Table)
	args := appendWhere(&sb, q.Filters, nil)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrapUnavailable("select", q.Table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapUnavailable("select", q.Table, err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("select", q.Table, err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context, table string, filters []Filter) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", table)
	args := appendWhere(&sb, filters, nil)

	var n int
	if err := p.pool.QueryRow(ctx, sb.String(), args...).Scan(&n); err != nil {
		return 0, wrapUnavailable("count", table, err)
	}
	return n, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, rows []Row) error {
	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		// Deterministic statement text helps the server-side cache.
		sort.Strings(cols)

		args := make([]any, 0, len(cols))
		ph := make([]string, 0, len(cols))
		for i, col := range cols {
			args = append(args, row[col])
			ph = append(ph, fmt.Sprintf("$%d", i+1))
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(ph, ", "))
		if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
			return wrapUnavailable("insert", table, err)
		}
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, table string, set Row, filters []Filter) (int, error) {
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET ", table)
	args := make([]any, 0, len(cols)+len(filters))
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, set[col])
		fmt.Fprintf(&sb, "%s = $%d", col, len(args))
	}
	args = appendWhere(&sb, filters, args)

	tag, err := p.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, wrapUnavailable("update", table, err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) Delete(ctx context.Context, table string, filters []Filter) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s", table)
	args := appendWhere(&sb, filters, nil)

	tag, err := p.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, wrapUnavailable("delete", table, err)
	}
	return int(tag.RowsAffected()), nil
}

func appendWhere(sb *strings.Builder, filters []Filter, args []any) []any {
	for i, f := range filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(sb, "%s = $%d", f.Column, len(args))
	}
	return args
}
