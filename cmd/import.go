package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recordmap/internal/importer"
)

var (
	importFile      string
	importTable     string
	importSheet     string
	importGeoColumn string
	importLabels    map[string]string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a CSV, XLSX or shapefile into a SQLite host table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		ctx := cmd.Context()

		h, err := openSQLite(ctx)
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		table := importTable
		if table == "" {
			table = cfg.Store.Table
		}
		opts := []importer.Option{importer.WithGeoJSONColumn(importGeoColumn)}
		if importSheet != "" {
			opts = append(opts, importer.WithSheet(importSheet))
		}

		res, err := importer.File(ctx, h, table, importFile, opts...)
		if err != nil {
			return eris.Wrap(err, "import file")
		}

		for col, label := range importLabels {
			if err := h.SetColumnLabel(ctx, col, label); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a .csv, .tsv, .xlsx or .shp file (required)")
	importCmd.Flags().StringVar(&importTable, "table", "", "target table (default store.table)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importGeoColumn, "geo-column", "GeoJSON", "column receiving shapefile geometries")
	importCmd.Flags().StringToStringVar(&importLabels, "label", nil, "column display labels, e.g. --label Layer=\"Land use\"")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
