package cmd

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datapublik/bps-wilayah/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bps-wilayah",
	Short: "Fetch Indonesia's administrative-region reference data from the BPS bridging API",
	Long: `bps-wilayah crawls the BPS bridging API breadth-first across the
administrative hierarchy (provinsi, kabupaten, kecamatan, desa), flattens the
paginated tree into tabular records, and emits raw JSON payloads, CSV rows,
a run manifest, and a SQL dump mirroring the bps_wilayah schema.

The endpoint usually requires a session cookie; pass it with --cookie or set
BPS_COOKIE (a .env file in the working directory is honored).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bps-wilayah.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "emit progress logs to stderr")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output")

	// Client flags shared by fetch and periodes
	rootCmd.PersistentFlags().String("base-url", "", "base URL for the BPS bridging API (default production endpoint)")
	rootCmd.PersistentFlags().String("periode-url", "", "endpoint for retrieving available periode values (default production endpoint)")
	rootCmd.PersistentFlags().String("cookie", "", "Cookie header to include (e.g. BIGipServer=...; TS017=...)")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().Int("max-retries", 3, "maximum attempts per request on failure (minimum 1)")
	rootCmd.PersistentFlags().Duration("delay", 250*time.Millisecond, "base retry backoff and politeness pause between levels")
	rootCmd.PersistentFlags().Bool("dry-run", false, "skip HTTP requests and only show which URLs would be fetched")

	// Bind flags to viper
	for _, name := range []string{
		"verbose", "debug",
		"base-url", "periode-url", "cookie",
		"timeout", "max-retries", "delay", "dry-run",
	} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initLogger installs the process logger at the level implied by the
// verbosity flags. Default is warn so a quiet run stays quiet.
func initLogger() {
	level := slog.LevelWarn
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	} else if viper.GetBool("verbose") {
		level = slog.LevelInfo
	}
	logger.NewWithLevel(level)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env in the working directory typically carries BPS_COOKIE.
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".bps-wilayah" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".bps-wilayah")
	}

	viper.SetEnvPrefix("BPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}
