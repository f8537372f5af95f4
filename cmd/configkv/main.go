package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "configkv",
		Short: "Flat key/value configuration store",
		Long: `configkv stores string configuration values under string keys.

Values live in a local SQLite database (or in memory) and can optionally be
served to, or read from, another configkv instance over HTTP.

Examples:
  configkv set db.host 127.0.0.1 db.port 5432
  configkv get db.port --default 5432
  configkv all --format yaml
  configkv serve --mcp`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !noColor {
				detectColor()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSetCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newHasCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newAllCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newEnvCmd())
	rootCmd.AddCommand(newStatusCmd())
	return rootCmd
}
