// Package cmd provides the CLI commands for flapi.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flapi-dev/flapi/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flapi",
	Short: "flapi - API and MCP server for SQL data sources",
	Long: `flapi turns a directory of YAML endpoint definitions into a REST API
and an MCP (Model Context Protocol) server backed by a SQL engine.

Each endpoint file maps a URL path or MCP entity (tool, resource, prompt)
to a SQL template with declared request fields, validators, and an
optional per-endpoint auth policy.

Quick start:
  1. Create a config file: flapi.yaml
  2. Put endpoint YAML files in ./endpoints/
  3. Run: flapi start

Configuration:
  Config is loaded from flapi.yaml in the current directory,
  $HOME/.flapi/, or /etc/flapi/.

  Environment variables can override config values with the FLAPI_ prefix.
  Example: FLAPI_SERVER_HTTP_ADDR=:9090

Commands:
  start          Start the server
  stop           Stop the running server
  hash-password  Generate an argon2id hash for a config password
  version        Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./flapi.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
