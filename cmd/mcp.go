package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/rd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets AI assistants query and update review state natively.
Configure with:

  {
    "mcpServers": {
      "rd": { "command": "rd", "args": ["mcp"] }
    }
  }

Available tools: rd_list_projects, rd_refresh_projects, rd_list_reports,
rd_project_stats, rd_review_view, rd_set_review, rd_flag_company`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	mgr, err := getManager()
	if err != nil {
		return err
	}
	eng, err := getEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	eng.LoadCached(ctx)

	srv := mcp.NewServer(mgr, eng, getBackend())
	err = srv.ServeStdio(ctx)

	// Flush review edits that are still inside their quiet period.
	mgr.CloseAll(context.Background())
	return err
}
