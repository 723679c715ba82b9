// Package cmd provides the CLI commands for intentgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-gate/intentgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "intentgate",
	Short: "intentgate - Intent Firewall rule engine",
	Long: `intentgate is the rule engine of an intent firewall: it mediates
inter-component dispatches (activities, services, broadcasts, providers,
and package queries) against XML rule files with hot reload.

Embedded in a host dispatcher it is consulted through its check entry
points; this CLI exercises the same engine standalone.

Commands:
  validate    Parse the rule directories and report per-kind counts and errors
  check       Evaluate a single dispatch against the rules
  watch       Load rules, watch the writable directory, and serve metrics
  version     Print version information

Configuration:
  Config is loaded from intentgate.yaml in the current directory,
  $HOME/.intentgate/, or /etc/intentgate/.

  Environment variables can override config values with the INTENTGATE_
  prefix. Example: INTENTGATE_RULES_DIR=/tmp/ifw`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./intentgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
