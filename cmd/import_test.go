package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportCmd_Metadata(t *testing.T) {
	assert.Equal(t, "import", importCmd.Use)
	assert.NotEmpty(t, importCmd.Short)
	require.NotNil(t, importCmd.Flags().Lookup("file"))
	flag := importCmd.Flags().Lookup("geo-column")
	require.NotNil(t, flag)
	assert.Equal(t, "GeoJSON", flag.DefValue)
}

func TestImportCmd_LoadsCSV(t *testing.T) {
	useTestConfig(t)
	csvPath := filepath.Join(t.TempDir(), "places.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Name,Longitude,Latitude,Layer\nDepot,10,20,Sites\nYard,11,21,Sites\n"), 0o644))

	importFile = csvPath
	importLabels = map[string]string{"Layer": "Site type"}
	t.Cleanup(func() {
		importFile = ""
		importLabels = nil
	})

	var buf bytes.Buffer
	importCmd.SetOut(&buf)
	importCmd.SetContext(context.Background())
	t.Cleanup(func() { importCmd.SetOut(nil) })
	require.NoError(t, importCmd.RunE(importCmd, nil))
	assert.Contains(t, buf.String(), `"rows": 2`)

	ctx := context.Background()
	h, err := initHost(ctx)
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck
	recs, err := h.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Yard", recs[1].String("Name"))

	label, err := h.ColumnLabel(ctx, "Layer")
	require.NoError(t, err)
	assert.Equal(t, "Site type", label)
}

func TestImportCmd_RequiresSQLite(t *testing.T) {
	useTestConfig(t)
	cfg.Store.Driver = "postgres"
	err := importCmd.RunE(importCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite")
}
