package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/config"
	"github.com/sells-group/recordmap/internal/metrics"
)

var (
	cfg *config.Config

	geocodeProvider string
)

var rootCmd = &cobra.Command{
	Use:   "recordmap",
	Short: "Reconcile table records onto an interactive map",
	Long:  "Turns rows of a host table into map markers and geometry layers, keeps selection and camera in sync with the host, and geocodes addresses back into the table.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyFlagOverrides()

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		metrics.Register()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyFlagOverrides lets startup flags win over the config file.
func applyFlagOverrides() {
	if geocodeProvider != "" {
		cfg.Geocode.Provider = geocodeProvider
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&geocodeProvider, "provider", "", "geocoding provider (nominatim, google, census, static); overrides geocode.provider")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
