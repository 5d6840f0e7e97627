package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/geocoding"
	"github.com/sells-group/recordmap/internal/record"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Run one geocoding scan over the main table and write positions back",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		h, err := initHost(ctx)
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		client, cleanup, err := initGeocoder()
		if err != nil {
			return err
		}
		defer cleanup()

		recs, err := h.Records(ctx)
		if err != nil {
			return eris.Wrap(err, "load records")
		}

		scanner := geocoding.NewScanner(client, h)
		res, err := scanner.Scan(ctx, recs, record.Resolve(hostMapping(), recs))
		if err != nil {
			return eris.Wrap(err, "geocode scan")
		}

		zap.L().Info("geocode complete",
			zap.Int("scanned", res.Scanned),
			zap.Int("resolved", res.Resolved),
			zap.Int("not_found", res.NotFound),
			zap.Int("failed", res.Failed),
		)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
