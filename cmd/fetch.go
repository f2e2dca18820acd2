package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datapublik/bps-wilayah/pkg/artifact"
	"github.com/datapublik/bps-wilayah/pkg/bps"
	"github.com/datapublik/bps-wilayah/pkg/crawler"
	"github.com/datapublik/bps-wilayah/pkg/sqlgen"
	"github.com/datapublik/bps-wilayah/pkg/sqlite"
	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Crawl the hierarchy and emit CSV, JSON, and SQL artifacts",
	Long: `Fetch crawls the requested administrative levels breadth-first and writes:

  data/raw/bps/<periode>/<level>.json   raw rows grouped by parent code
  data/processed/bps/<periode>/*.csv    normalized rows plus manifest.json
  data/sql/bps_wilayah_<periode>.sql    SQL dump grouped by province

Nothing is persisted unless the whole crawl succeeds.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("periode-merge", "latest", "BPS periode_merge parameter; pass 'latest' to auto-discover")
	fetchCmd.Flags().String("levels", "provinsi,kabupaten,kecamatan", "comma-separated list of levels to traverse")
	fetchCmd.Flags().String("raw-dir", "data/raw/bps", "root directory for raw JSON payloads")
	fetchCmd.Flags().String("processed-dir", "data/processed/bps", "root directory for normalized CSV outputs")
	fetchCmd.Flags().String("sql-dir", "data/sql", "directory for generated SQL dumps")
	fetchCmd.Flags().String("sql-filename", "", "override the SQL filename (defaults to bps_wilayah_<periode>.sql)")
	fetchCmd.Flags().Int("workers", 8, "maximum concurrent requests per level")
	fetchCmd.Flags().String("sqlite-file", "", "also load the records into this SQLite database")

	// Bind flags to viper
	for _, name := range []string{
		"periode-merge", "levels",
		"raw-dir", "processed-dir", "sql-dir", "sql-filename",
		"workers", "sqlite-file",
	} {
		_ = viper.BindPFlag(name, fetchCmd.Flags().Lookup(name))
	}
}

func runFetch(cmd *cobra.Command, _ []string) error {
	initLogger()
	ctx := cmd.Context()

	levels, err := wilayah.ParseLevels(viper.GetString("levels"))
	if err != nil {
		return err
	}
	slog.Info("levels to fetch", "levels", strings.Join(wilayah.LevelNames(levels), ", "))

	cfg, err := clientConfig()
	if err != nil {
		return err
	}
	client := bps.NewClient(cfg)
	dryRun := viper.GetBool("dry-run")

	periode, err := bps.SelectPeriode(ctx, client, viper.GetString("periode-merge"))
	if err != nil {
		return err
	}
	client.SetPeriode(periode)
	slog.Info("using periode", "periode", periode)

	fetchedAt := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)

	writer := artifact.Writer{
		RawDir:       viper.GetString("raw-dir"),
		ProcessedDir: viper.GetString("processed-dir"),
		SQLDir:       viper.GetString("sql-dir"),
	}
	sqlPath := writer.SQLPath(periode, viper.GetString("sql-filename"))

	collected, err := crawler.Crawl(ctx, client, crawler.Options{
		Levels:  levels,
		Workers: viper.GetInt("workers"),
		Delay:   viper.GetDuration("delay"),
		DryRun:  dryRun,
	})
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(levels))
	for _, level := range levels {
		counts[string(level)] = len(collected[level])
		slog.Info("collected rows", "level", level, "count", counts[string(level)])
	}

	paths := writer.Resolve(periode)
	if !dryRun {
		paths, err = writer.EnsureDirs(periode)
		if err != nil {
			return err
		}
		for _, level := range levels {
			if err := writer.WriteRaw(paths, level, collected[level], fetchedAt); err != nil {
				return err
			}
			if err := writer.WriteCSV(paths, level, collected[level], periode, fetchedAt); err != nil {
				return err
			}
		}
		if err := writer.WriteManifest(paths, artifact.Manifest{
			BaseURL:      client.BaseURL(),
			Counts:       counts,
			FetchedAt:    fetchedAt,
			Levels:       wilayah.LevelNames(levels),
			PeriodeMerge: periode,
		}); err != nil {
			return err
		}

		records := wilayah.Flatten(collected)
		if err := writer.WriteSQL(sqlPath, sqlgen.Render(records, periode, levels, fetchedAt)); err != nil {
			return err
		}
		if dbFile := viper.GetString("sqlite-file"); dbFile != "" {
			if err := sqlite.Import(ctx, dbFile, records, periode, fetchedAt); err != nil {
				return err
			}
			slog.Info("imported records into sqlite", "file", dbFile, "rows", len(records))
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "BPS wilayah extraction completed.")
	fmt.Fprintf(out, "Levels        : %s\n", strings.Join(wilayah.LevelNames(levels), ", "))
	fmt.Fprintf(out, "Periode       : %s\n", periode)
	fmt.Fprintf(out, "Fetched at    : %s\n", fetchedAt)
	fmt.Fprintf(out, "Raw payloads  : %s\n", paths.Raw)
	fmt.Fprintf(out, "Processed CSV : %s\n", paths.Processed)
	fmt.Fprintf(out, "SQL output    : %s\n", sqlPath)
	for _, level := range levels {
		fmt.Fprintf(out, "  - %-10s: %d rows\n", level, counts[string(level)])
	}
	fmt.Fprintf(out, "Workers       : %d\n", viper.GetInt("workers"))
	return nil
}

// clientConfig assembles the shared client settings from viper. Retry counts
// below one are rejected here rather than silently floored by the client.
func clientConfig() (bps.Config, error) {
	if retries := viper.GetInt("max-retries"); retries < 1 {
		return bps.Config{}, errors.Errorf("--max-retries must be at least 1, got %d", retries)
	}
	return bps.Config{
		BaseURL:    viper.GetString("base-url"),
		PeriodeURL: viper.GetString("periode-url"),
		Cookie:     viper.GetString("cookie"),
		Timeout:    viper.GetDuration("timeout"),
		MaxRetries: viper.GetInt("max-retries"),
		RetryDelay: viper.GetDuration("delay"),
		DryRun:     viper.GetBool("dry-run"),
	}, nil
}
