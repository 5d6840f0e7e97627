package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/internal/session"
)

func TestRenderSnapshot_Multi(t *testing.T) {
	dbPath := useTestConfig(t)
	seedRecords(t, dbPath,
		map[string]any{"Name": "Origin", "Longitude": 0, "Latitude": 0},
		map[string]any{"Name": "Depot", "Longitude": 10, "Latitude": 20},
	)
	ctx := context.Background()
	h, err := initHost(ctx)
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck

	snap, err := renderSnapshot(ctx, h, sessionOptions(), 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Features)
	assert.Len(t, snap.Features.Features, 1)
	assert.NotContains(t, snap.Attribution, "onclick")
	assert.Contains(t, snap.Attribution, "Example")
	assert.Nil(t, snap.Selected)
}

func TestRenderSnapshot_SingleSelectsRecord(t *testing.T) {
	dbPath := useTestConfig(t)
	seedRecords(t, dbPath,
		map[string]any{"Name": "A", "Longitude": 1, "Latitude": 1},
		map[string]any{"Name": "B", "Longitude": 2, "Latitude": 2},
	)
	ctx := context.Background()
	h, err := initHost(ctx)
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck

	opts := sessionOptions()
	opts.Mode = session.ModeSingle
	snap, err := renderSnapshot(ctx, h, opts, 2)
	require.NoError(t, err)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, record.RowID(2), *snap.Selected)
	assert.Len(t, snap.Features.Features, 1)

	_, err = renderSnapshot(ctx, h, opts, 99)
	assert.Error(t, err)
}

func TestRenderSnapshot_MissingMappingIsReported(t *testing.T) {
	dbPath := useTestConfig(t)
	seedRecords(t, dbPath, map[string]any{"Title": "x"})
	ctx := context.Background()
	h, err := initHost(ctx)
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck

	snap, err := renderSnapshot(ctx, h, sessionOptions(), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Error)
}

func TestRenderCommand_PrintsJSON(t *testing.T) {
	dbPath := useTestConfig(t)
	seedRecords(t, dbPath, map[string]any{"Name": "Depot", "Longitude": 10, "Latitude": 20})

	var buf bytes.Buffer
	renderCmd.SetOut(&buf)
	renderCmd.SetContext(context.Background())
	t.Cleanup(func() { renderCmd.SetOut(nil) })

	require.NoError(t, renderCmd.RunE(renderCmd, nil))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "multi", out["options"].(map[string]any)["mode"])
}
