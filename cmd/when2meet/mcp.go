package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/yhlin07/when2meet-mcp-2025/internal/logging"
	"github.com/yhlin07/when2meet-mcp-2025/internal/mcp"
)

func mcpCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve prepare_meeting_dossier over stdio (MCP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			a, err := newApp(cmd.Context(), *cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcp.NewServer(a.agent, mcp.Options{
				Version: version,
				Logger:  logging.Component(a.logger, "mcp"),
			})
			return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
