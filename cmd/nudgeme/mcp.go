package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nudgeme/nudgeme/internal/mcpserver"
	"github.com/nudgeme/nudgeme/pkg/app"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve memory and session tools over MCP on stdio",
		Long: "Serve memory and session tools over MCP on stdio.\n\n" +
			"The stores are opened directly, so run this while the daemon is stopped. " +
			"A running daemon serves the same tools at /mcp on its gateway.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := runParams(cmd)
			params.LogWriter = os.Stderr
			local, err := app.OpenLocal(params)
			if err != nil {
				return err
			}
			defer local.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s := mcpserver.New(mcpserver.Deps{
				Memory:        local.Memories,
				Conversations: local.Conversations,
			}, version)
			return mcpserver.ServeStdio(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
