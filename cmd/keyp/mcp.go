package main

import (
	"fmt"
	"os"

	"github.com/forest6511/keyp/internal/logger"
	"github.com/forest6511/keyp/internal/mcp"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start a Model Context Protocol server on stdio that lets AI assistants
look up secret names without ever receiving plaintext values.

Available tools:
  - secret_list:       List secret names
  - secret_search:     List secret names containing a query
  - secret_exists:     Check whether a secret exists
  - secret_get_masked: Get a masked value (e.g. "****WXYZ")

Authentication:
  Set KEYP_PASSWORD before starting the server. It is read once and removed
  from the environment.

Policy:
  An optional mcp-policy.yaml next to the vault (mode 0600) limits which
  names the tools can see:

    version: 1
    default_action: deny
    allowed_keys: ["dev_*", "staging_*"]
    denied_keys: ["*_root"]

Example MCP client configuration:
  {
    "mcpServers": {
      "keyp": {
        "type": "stdio",
        "command": "/path/to/keyp",
        "args": ["mcp"],
        "env": {"KEYP_PASSWORD": "your-master-password"}
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; diagnostics go to stderr as JSON.
		jsonLog, err := logger.NewJSON(cfg.LogLevel, os.Stderr)
		if err != nil {
			return err
		}

		server, err := mcp.NewServer(&mcp.ServerOptions{
			VaultPath: cfg.VaultPath,
			Version:   version,
			Logger:    jsonLog,
		})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		ctx := cmd.Context()
		if err := server.Run(ctx); err != nil {
			// Don't report cancellation as an error
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}
