package host

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recordmap/internal/record"
)

func newTestSQLite(t *testing.T, opts ...SQLiteOption) *SQLite {
	t.Helper()
	h, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), "Records", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() }) //nolint:errcheck
	require.NoError(t, h.Migrate(context.Background()))
	require.NoError(t, h.EnsureTable(context.Background(), "Records", []string{"Name", "Longitude", "Latitude", "Address"}))
	return h
}

func TestSQLite_InsertAndRecords(t *testing.T) {
	h := newTestSQLite(t)
	ctx := context.Background()

	id1, err := h.InsertRecord(ctx, "Records", map[string]any{"Name": "A", "Longitude": 10.5, "Latitude": 20})
	require.NoError(t, err)
	id2, err := h.InsertRecord(ctx, "Records", map[string]any{"Name": "B", "Address": "1 Main St"})
	require.NoError(t, err)

	recs, err := h.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, id1, recs[0].ID)
	assert.Equal(t, id2, recs[1].ID)
	assert.Equal(t, "A", recs[0].String("Name"))
	lng, ok := recs[0].Float("Longitude")
	require.True(t, ok)
	assert.Equal(t, 10.5, lng)
	assert.Nil(t, recs[1].Fields["Longitude"])
}

func TestSQLite_UpdateRecord(t *testing.T) {
	h := newTestSQLite(t)
	ctx := context.Background()
	id, err := h.InsertRecord(ctx, "Records", map[string]any{"Name": "A", "Address": "x"})
	require.NoError(t, err)

	require.NoError(t, h.UpdateRecord(ctx, id, map[string]any{"Longitude": 1.5, "Latitude": nil}))
	recs, err := h.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, recs[0].Fields["Longitude"])
	assert.Nil(t, recs[0].Fields["Latitude"])

	err = h.UpdateRecord(ctx, 999, map[string]any{"Name": "ghost"})
	assert.ErrorIs(t, err, ErrRowNotFound)

	err = h.UpdateRecord(ctx, id, map[string]any{`bad"col`: 1})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	assert.NoError(t, h.UpdateRecord(ctx, id, nil))
}

func TestSQLite_ReadOnly(t *testing.T) {
	h := newTestSQLite(t, WithReadOnly())
	assert.False(t, h.CanWrite())
	assert.Error(t, h.UpdateRecord(context.Background(), 1, map[string]any{"Name": "x"}))
}

func TestSQLite_EnsureTableAddsColumns(t *testing.T) {
	h := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, h.EnsureTable(ctx, "Records", []string{"Name", "Geo"}))
	_, err := h.InsertRecord(ctx, "Records", map[string]any{"Geo": map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}}})
	require.NoError(t, err)

	cols, err := h.FetchTable(ctx, "Records")
	require.NoError(t, err)
	require.Contains(t, cols, "Geo")
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, cols["Geo"][0].(string))
}

func TestSQLite_FetchAuxTable(t *testing.T) {
	h := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, h.EnsureTable(ctx, "Zones", []string{"geo", "label"}))
	_, err := h.InsertRecord(ctx, "Zones", map[string]any{"geo": `{"type":"Point","coordinates":[1,2]}`, "label": "Z"})
	require.NoError(t, err)

	cols, err := h.FetchTable(ctx, "Zones")
	require.NoError(t, err)
	assert.Equal(t, []any{"Z"}, cols["label"])
	assert.Equal(t, []any{int64(1)}, cols["id"])

	_, err = h.FetchTable(ctx, "Missing")
	assert.Error(t, err)
}

func TestSQLite_ColumnLabel(t *testing.T) {
	h := newTestSQLite(t)
	ctx := context.Background()

	label, err := h.ColumnLabel(ctx, "Layer")
	require.NoError(t, err)
	assert.Equal(t, "Layer", label)

	require.NoError(t, h.SetColumnLabel(ctx, "Layer", "Category"))
	require.NoError(t, h.SetColumnLabel(ctx, "Layer", "Land use"))
	label, err = h.ColumnLabel(ctx, "Layer")
	require.NoError(t, err)
	assert.Equal(t, "Land use", label)
}

func TestSQLite_Cursor(t *testing.T) {
	h := newTestSQLite(t)
	_, ok := h.CursorRow()
	assert.False(t, ok)
	require.NoError(t, h.SetCursorRow(context.Background(), 7))
	row, ok := h.CursorRow()
	assert.True(t, ok)
	assert.Equal(t, record.RowID(7), row)
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("Records"))
	assert.True(t, ValidIdentifier("Geocoded Address"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier(`a"b`))
	assert.False(t, ValidIdentifier(" padded"))
	assert.False(t, ValidIdentifier("line\nbreak"))
}
