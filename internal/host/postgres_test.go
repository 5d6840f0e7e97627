package host

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recordmap/internal/record"
)

func newMockPostgres(t *testing.T, readOnly bool) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock, "Records", readOnly), mock
}

func TestPostgres_Records(t *testing.T) {
	h, mock := newMockPostgres(t, false)
	rows := mock.NewRows([]string{"id", "Name", "Longitude"}).
		AddRow(int64(1), "A", 10.0).
		AddRow(int64(2), "B", nil)
	mock.ExpectQuery(`SELECT \* FROM "Records" ORDER BY id`).WillReturnRows(rows)

	recs, err := h.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, record.RowID(2), recs[1].ID)
	assert.Equal(t, "A", recs[0].String("Name"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRecord(t *testing.T) {
	h, mock := newMockPostgres(t, false)
	mock.ExpectExec(`UPDATE "Records" SET "Latitude" = \$1, "Longitude" = \$2 WHERE id = \$3`).
		WithArgs(20.0, 10.0, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, h.UpdateRecord(context.Background(), 3, map[string]any{"Longitude": 10.0, "Latitude": 20.0}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRecordMissingRow(t *testing.T) {
	h, mock := newMockPostgres(t, false)
	mock.ExpectExec(`UPDATE "Records" SET "Name" = \$1 WHERE id = \$2`).
		WithArgs("x", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := h.UpdateRecord(context.Background(), 9, map[string]any{"Name": "x"})
	assert.ErrorIs(t, err, ErrRowNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReadOnly(t *testing.T) {
	h, mock := newMockPostgres(t, true)
	assert.False(t, h.CanWrite())
	assert.Error(t, h.UpdateRecord(context.Background(), 1, map[string]any{"Name": "x"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ColumnLabel(t *testing.T) {
	h, mock := newMockPostgres(t, false)

	label := "Land use"
	mock.ExpectQuery(`SELECT col_description`).
		WithArgs(`"Records"`, "Layer").
		WillReturnRows(mock.NewRows([]string{"col_description"}).AddRow(&label))
	got, err := h.ColumnLabel(context.Background(), "Layer")
	require.NoError(t, err)
	assert.Equal(t, "Land use", got)

	mock.ExpectQuery(`SELECT col_description`).
		WithArgs(`"Records"`, "Other").
		WillReturnError(pgx.ErrNoRows)
	got, err = h.ColumnLabel(context.Background(), "Other")
	require.NoError(t, err)
	assert.Equal(t, "Other", got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FetchTableError(t *testing.T) {
	h, mock := newMockPostgres(t, false)
	mock.ExpectQuery(`SELECT \* FROM "Zones"`).WillReturnError(assert.AnError)
	_, err := h.FetchTable(context.Background(), "Zones")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
