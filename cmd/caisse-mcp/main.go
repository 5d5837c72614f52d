package main

import (
	"log/slog"
	"os"

	"github.com/enregistreuse/caisse-mcp/pkg/prettylog"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "caisse-mcp",
	Short:   "OAuth2 broker and MCP server for the enregistreuse.fr cash register",
	Version: version,
}

func main() {
	if os.Getenv("PRETTY_LOGS") != "false" {
		logger := slog.New(prettylog.NewHandler(slog.LevelDebug))
		slog.SetDefault(logger)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
