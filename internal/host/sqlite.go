package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/recordmap/internal/record"
)

// SQLiteOption configures a SQLite host.
type SQLiteOption func(*SQLite)

// WithReadOnly refuses write-back.
func WithReadOnly() SQLiteOption {
	return func(s *SQLite) { s.readOnly = true }
}

// SQLite is a Host whose tables live in a SQLite database. Columns are
// declared without a type so values keep the storage class they were
// written with.
type SQLite struct {
	cursorState
	db       *sql.DB
	table    string
	readOnly bool
}

var _ Host = (*SQLite)(nil)

// NewSQLite opens the database at dsn with WAL mode and uses table as the
// main table.
func NewSQLite(dsn, table string, opts ...SQLiteOption) (*SQLite, error) {
	if err := checkIdentifiers(table); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps :memory: databases and pragmas consistent.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLite{db: db, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS _column_labels (
	table_name TEXT NOT NULL,
	column_id  TEXT NOT NULL,
	label      TEXT NOT NULL,
	PRIMARY KEY (table_name, column_id)
);`

// Migrate creates the metadata table.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Host.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Table returns the main table name.
func (s *SQLite) Table() string { return s.table }

// CanWrite implements Host.
func (s *SQLite) CanWrite() bool { return !s.readOnly }

func quote(name string) string {
	return `"` + name + `"`
}

// EnsureTable creates table with an integer id key if needed and adds any
// missing columns.
func (s *SQLite) EnsureTable(ctx context.Context, table string, columns []string) error {
	if err := checkIdentifiers(append([]string{table}, columns...)...); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT)", quote(table))); err != nil {
		return eris.Wrapf(err, "sqlite: create table %s", table)
	}

	existing, err := s.columns(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if col == "id" || existing[col] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(table), quote(col))); err != nil {
			return eris.Wrapf(err, "sqlite: add column %s.%s", table, col)
		}
		existing[col] = true
	}
	return nil
}

func (s *SQLite) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: table info %s", table)
	}
	defer rows.Close() //nolint:errcheck
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan table info")
		}
		out[name] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: table info rows")
}

// InsertRecord appends a row to table and returns its id.
func (s *SQLite) InsertRecord(ctx context.Context, table string, fields map[string]any) (record.RowID, error) {
	cols := sortedKeys(fields)
	if err := checkIdentifiers(append([]string{table}, cols...)...); err != nil {
		return 0, err
	}
	var stmt string
	args := make([]any, 0, len(cols))
	if len(cols) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(table))
	} else {
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quote(c)
			marks[i] = "?"
			args = append(args, storable(fields[c]))
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert into %s", table)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return record.RowID(id), nil
}

// SetColumnLabel stores the display label of a main-table column.
func (s *SQLite) SetColumnLabel(ctx context.Context, colID, label string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _column_labels (table_name, column_id, label) VALUES (?, ?, ?)
		ON CONFLICT (table_name, column_id) DO UPDATE SET label = excluded.label`,
		s.table, colID, label)
	return eris.Wrap(err, "sqlite: set column label")
}

// ColumnLabel implements ColumnLabeler. Columns without a stored label
// resolve to their id.
func (s *SQLite) ColumnLabel(ctx context.Context, colID string) (string, error) {
	var label string
	err := s.db.QueryRowContext(ctx,
		"SELECT label FROM _column_labels WHERE table_name = ? AND column_id = ?", s.table, colID).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return colID, nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: column label")
	}
	return label, nil
}

// Records implements Host.
func (s *SQLite) Records(ctx context.Context) ([]record.Record, error) {
	cols, err := s.FetchTable(ctx, s.table)
	if err != nil {
		return nil, err
	}
	return cols.Pivot(), nil
}

// FetchTable implements TableFetcher.
func (s *SQLite) FetchTable(ctx context.Context, table string) (record.Columns, error) {
	if err := checkIdentifiers(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", quote(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: fetch %s", table)
	}
	defer rows.Close() //nolint:errcheck

	names, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: columns")
	}
	out := make(record.Columns, len(names))
	for _, n := range names {
		out[n] = []any{}
	}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		for i, n := range names {
			out[n] = append(out[n], loaded(vals[i]))
		}
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: rows %s", table)
}

// UpdateRecord implements Writer.
func (s *SQLite) UpdateRecord(ctx context.Context, id record.RowID, fields map[string]any) error {
	if s.readOnly {
		return eris.New("sqlite: host is read-only")
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
		sets[i] = quote(c) + " = ?"
		args = append(args, storable(fields[c]))
	}
	args = append(args, int64(id))

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quote(s.table), strings.Join(sets, ", ")), args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update row %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRowNotFound, "id %d", id)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// storable encodes structured values as JSON text.
func storable(v any) any {
	switch v.(type) {
	case map[string]any, []any, json.RawMessage:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}

func loaded(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
