package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/rd/internal/output"
	"github.com/joescharf/rd/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <scope>",
	Short: "Show review progress for a project scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun(scope string) error {
	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}

	state := ss.Session.State()
	s := stats.Compute(state.Records, state.Entities)

	if s.Total == 0 {
		ui.Info("No companies in scope %s.", scope)
		return nil
	}

	table := ui.Table([]string{"Metric", "Value"})
	table.Append([]string{"Total", fmt.Sprintf("%d", s.Total)})
	table.Append([]string{"Reviewed", fmt.Sprintf("%d", s.Reviewed)})
	table.Append([]string{"Approved", fmt.Sprintf("%d", s.Approved)})
	table.Append([]string{"Rejected", fmt.Sprintf("%d", s.Rejected)})
	table.Append([]string{"Maybe", fmt.Sprintf("%d", s.Maybe)})
	table.Append([]string{"Pending", fmt.Sprintf("%d", s.Pending)})
	table.Append([]string{"Flagged", fmt.Sprintf("%d", s.Flagged)})
	if s.AvgScore > 0 {
		table.Append([]string{"Avg score", fmt.Sprintf("%.1f", s.AvgScore)})
	}
	table.Append([]string{"Progress", output.ProgressColor(s.PercentComplete)})
	table.Render()
	return nil
}
