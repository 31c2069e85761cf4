package main

import (
	"github.com/spf13/cobra"

	"github.com/jllopis/steward/pkg/mcp"
)

func newMCPCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol integration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the top-level registry over MCP on stdin/stdout",
		Long: `Serve exposes every top-level operation as an MCP tool. Calls go through
the same guardrail and hooks as the primary agent. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := o.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer o.watchConfig(ctx)()
			return mcp.Serve(ctx, serviceName, a.top, cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
		},
	})
	return cmd
}
