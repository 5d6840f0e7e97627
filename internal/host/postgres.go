package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recordmap/internal/record"
)

// Pool is the subset of pgxpool.Pool the Postgres host uses. pgxmock pools
// satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is a Host whose tables live in a Postgres schema. Column labels
// come from column comments.
type Postgres struct {
	cursorState
	pool     Pool
	table    string
	readOnly bool
}

var _ Host = (*Postgres)(nil)

// NewPostgres connects a pool and uses table as the main table.
func NewPostgres(ctx context.Context, connString, table string, readOnly bool) (*Postgres, error) {
	if err := checkIdentifiers(table); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return NewPostgresWithPool(pool, table, readOnly), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool, table string, readOnly bool) *Postgres {
	return &Postgres{pool: pool, table: table, readOnly: readOnly}
}

// Close implements Host.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// CanWrite implements Host.
func (p *Postgres) CanWrite() bool { return !p.readOnly }

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Records implements Host.
func (p *Postgres) Records(ctx context.Context) ([]record.Record, error) {
	cols, err := p.FetchTable(ctx, p.table)
	if err != nil {
		return nil, err
	}
	return cols.Pivot(), nil
}

// FetchTable implements TableFetcher.
func (p *Postgres) FetchTable(ctx context.Context, table string) (record.Columns, error) {
	if err := checkIdentifiers(table); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", ident(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: fetch %s", table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make(record.Columns, len(fields))
	for _, f := range fields {
		out[f.Name] = []any{}
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		for i, f := range fields {
			out[f.Name] = append(out[f.Name], pgValue(vals[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: rows %s", table)
	}
	return out, nil
}

// pgValue flattens driver types that the record layer cannot coerce.
func pgValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []byte:
		return string(t)
	}
	return v
}

// UpdateRecord implements Writer.
func (p *Postgres) UpdateRecord(ctx context.Context, id record.RowID, fields map[string]any) error {
	if p.readOnly {
		return eris.New("postgres: host is read-only")
	}
	cols := sortedKeys(fields)
	if len(cols) == 0 {
		return nil
	}
	if err := checkIdentifiers(cols...); err != nil {
		return err
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", ident(c), i+1)
		args = append(args, storable(fields[c]))
	}
	args = append(args, int64(id))

	tag, err := p.pool.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		ident(p.table), strings.Join(sets, ", "), len(cols)+1), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update row %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRowNotFound, "id %d", id)
	}
	return nil
}

// ColumnLabel implements ColumnLabeler using the column comment. Columns
// without a comment resolve to their id.
func (p *Postgres) ColumnLabel(ctx context.Context, colID string) (string, error) {
	var label *string
	err := p.pool.QueryRow(ctx, `
		SELECT col_description(a.attrelid, a.attnum)
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1) AND a.attname = $2`,
		ident(p.table), colID,
	).Scan(&label)
	if errors.Is(err, pgx.ErrNoRows) {
		return colID, nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: column label")
	}
	if label == nil || *label == "" {
		return colID, nil
	}
	return *label, nil
}
