package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/datapublik/bps-wilayah/pkg/bps"
)

var periodesCmd = &cobra.Command{
	Use:   "periodes",
	Short: "List available periode snapshots",
	Long: `Periodes queries the BPS periode catalogue and prints the available
periode_merge values, most recent first. The first value is what
'fetch --periode-merge latest' would select.`,
	Args: cobra.NoArgs,
	RunE: runPeriodes,
}

func init() {
	rootCmd.AddCommand(periodesCmd)

	periodesCmd.Flags().StringP("output", "o", "text", "output format (text, json, yaml)")
	_ = viper.BindPFlag("output", periodesCmd.Flags().Lookup("output"))
}

func runPeriodes(cmd *cobra.Command, _ []string) error {
	initLogger()

	cfg, err := clientConfig()
	if err != nil {
		return err
	}
	client := bps.NewClient(cfg)
	payload, err := client.FetchPeriodes(cmd.Context())
	if err != nil {
		return err
	}
	values := bps.ExtractPeriodes(payload)

	switch format := viper.GetString("output"); format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]any{"periodes": values})
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		defer encoder.Close()
		return encoder.Encode(map[string]any{"periodes": values})
	case "text":
		out := cmd.OutOrStdout()
		if len(values) == 0 {
			fmt.Fprintln(out, "No periode values found.")
			return nil
		}
		fmt.Fprintln(out, "Available periodes:")
		for _, value := range values {
			fmt.Fprintf(out, "  - %s\n", value)
		}
		return nil
	default:
		return errors.Errorf("unsupported output format: %s", format)
	}
}
