// Package commands provides the CLI commands for layerlibre.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drecchia/maplibre-layerlibre/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "layerlibre",
	Short: "layerlibre - map layer control service",
	Long: `layerlibre manages base styles, overlays and overlay groups for a
MapLibre-style map: activation, opacity, zoom filtering, persisted
selections and an HTTP API with a live event stream.

Run 'layerlibre serve' to start the headless service, or
'layerlibre validate' to lint a catalog file.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; catalogs may reference {env:VAR}.
		_ = godotenv.Load()

		logging.Init(logging.Config{
			Level:  logLevel,
			Pretty: logPretty,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", true, "Human-readable log output")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("layerlibre %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
