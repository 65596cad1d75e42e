package main

import (
	"github.com/dgallion1/treegest/internal/mcptool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the visual tree tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			logger.Info("mcp server starting on stdio")
			return mcptool.NewServer(svc, version, logger).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
