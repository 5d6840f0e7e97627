package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recordmap/internal/host"
	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/internal/resilience"
	"github.com/sells-group/recordmap/internal/session"
)

var (
	renderOptionsPath string
	renderRecordID    int64
	renderOutput      string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the main table once and print the map snapshot as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("render"); err != nil {
			return err
		}
		ctx := cmd.Context()

		opts := sessionOptions()
		if renderOptionsPath != "" {
			o, err := loadOptions(renderOptionsPath, opts)
			if err != nil {
				return err
			}
			opts = o
		}

		h, err := initHost(ctx)
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		snap, err := renderSnapshot(ctx, h, opts, record.RowID(renderRecordID))
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if renderOutput != "" {
			f, err := os.Create(renderOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(snap), "encode snapshot")
	},
}

// renderSnapshot runs one offline render of the main table. A non-zero id
// plays a host cursor move to that row afterwards. A mapping error is
// reported inside the snapshot, not returned.
func renderSnapshot(ctx context.Context, h host.Host, opts session.Options, id record.RowID) (session.Snapshot, error) {
	sess := session.New(ctx, session.Deps{
		Tables:     h,
		Labels:     h,
		MaxFitZoom: cfg.Widget.MaxFitZoom,
		Retry:      resilience.DefaultRetryConfig(),
	}, opts)

	recs, err := h.Records(ctx)
	if err != nil {
		return session.Snapshot{}, eris.Wrap(err, "load records")
	}
	mapping := hostMapping()

	var renderErr *session.RenderError
	if err := sess.OnRecords(ctx, recs, mapping); err != nil && !errors.As(err, &renderErr) {
		return session.Snapshot{}, err
	}
	if id != 0 {
		rec, ok := findRecord(recs, id)
		if !ok {
			return session.Snapshot{}, eris.Errorf("record %d not found", id)
		}
		if err := sess.OnRecord(ctx, rec, mapping); err != nil && !errors.As(err, &renderErr) {
			return session.Snapshot{}, err
		}
	}
	if err := sess.Wait(ctx); err != nil {
		return session.Snapshot{}, eris.Wrap(err, "wait for layers")
	}
	return sess.Snapshot(), nil
}

func init() {
	renderCmd.Flags().StringVar(&renderOptionsPath, "options", "", "YAML or JSON widget options file")
	renderCmd.Flags().Int64Var(&renderRecordID, "record", 0, "select this row id after rendering")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "write the snapshot to a file instead of stdout")
	rootCmd.AddCommand(renderCmd)
}
