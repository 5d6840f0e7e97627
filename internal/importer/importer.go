// Package importer loads spreadsheet, CSV and shapefile data into a host table.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/record"
)

// Target is the table sink an import writes into. *host.SQLite satisfies it.
type Target interface {
	EnsureTable(ctx context.Context, table string, columns []string) error
	InsertRecord(ctx context.Context, table string, fields map[string]any) (record.RowID, error)
}

// ErrUnsupportedFormat is returned for file extensions with no reader.
var ErrUnsupportedFormat = eris.New("importer: unsupported format")

// Result summarises one import.
type Result struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
	Skipped int      `json:"skipped"`
}

// Options configures an import.
type Options struct {
	Sheet         string // xlsx sheet name; the first sheet when empty
	GeoJSONColumn string // shapefile geometry column, default "GeoJSON"
	Delimiter     rune   // csv delimiter, default ','
}

// Option mutates Options.
type Option func(*Options)

// WithSheet selects an xlsx sheet by name.
func WithSheet(name string) Option {
	return func(o *Options) { o.Sheet = name }
}

// WithGeoJSONColumn names the column shapefile geometries are written to.
func WithGeoJSONColumn(name string) Option {
	return func(o *Options) { o.GeoJSONColumn = name }
}

// WithDelimiter sets the csv field delimiter.
func WithDelimiter(r rune) Option {
	return func(o *Options) { o.Delimiter = r }
}

// table is the intermediate form every reader produces.
type table struct {
	columns []string
	rows    [][]any
	skipped int
}

// File imports the file at path into table, creating the table and any
// missing columns. The format is chosen by extension.
func File(ctx context.Context, dst Target, tableName, path string, opts ...Option) (*Result, error) {
	o := Options{GeoJSONColumn: "GeoJSON", Delimiter: ','}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		t   *table
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		t, err = readXLSX(path, o.Sheet)
	case ".csv", ".tsv", ".txt":
		if ext == ".tsv" && o.Delimiter == ',' {
			o.Delimiter = '\t'
		}
		t, err = readCSV(ctx, path, o.Delimiter)
	case ".shp":
		t, err = readShapefile(path, o.GeoJSONColumn)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
	if err != nil {
		return nil, err
	}
	return load(ctx, dst, tableName, t)
}

func load(ctx context.Context, dst Target, tableName string, t *table) (*Result, error) {
	if err := dst.EnsureTable(ctx, tableName, t.columns); err != nil {
		return nil, eris.Wrap(err, "importer: ensure table")
	}
	res := &Result{Table: tableName, Columns: t.columns, Skipped: t.skipped}
	for i, row := range t.rows {
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		fields := make(map[string]any, len(t.columns))
		for j, col := range t.columns {
			if j < len(row) && row[j] != nil {
				fields[col] = row[j]
			}
		}
		if _, err := dst.InsertRecord(ctx, tableName, fields); err != nil {
			return res, eris.Wrapf(err, "importer: insert row %d", i+1)
		}
		res.Rows++
	}
	zap.L().Info("importer: loaded table",
		zap.String("table", tableName),
		zap.Int("rows", res.Rows),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// headerColumns turns a header row into unique, storable column names. The
// host's own "id" key cannot be imported and is renamed.
func headerColumns(header []string) []string {
	used := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.Map(func(r rune) rune {
			if r == '"' || r < 0x20 {
				return -1
			}
			return r
		}, h))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if strings.EqualFold(name, "id") {
			name = "source_id"
		}
		if r := []rune(name); len(r) > 60 {
			name = strings.TrimSpace(string(r[:60]))
		}
		base := name
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// textRows converts string cells to stored values. Empty cells are absent.
func textRows(rows [][]string) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		row := make([]any, len(r))
		empty := true
		for i, v := range r {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			row[i] = v
			empty = false
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}
