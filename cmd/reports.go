package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List report artifacts on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportsListRun()
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
}

func reportsListRun() error {
	b, err := requireBackend()
	if err != nil {
		return err
	}

	ctx := context.Background()
	reports, err := b.ListReports(ctx)
	if err != nil {
		return err
	}

	if len(reports) == 0 {
		ui.Info("No report artifacts on the backend.")
		return nil
	}

	table := ui.Table([]string{"Path", "Type", "Companies", "Generated"})
	for _, r := range reports {
		generated := "-"
		if !r.Timestamp.IsZero() {
			generated = r.Timestamp.Format("2006-01-02 15:04")
		}
		table.Append([]string{
			r.Path,
			r.ReportType,
			fmt.Sprintf("%d", r.TotalCompanies),
			generated,
		})
	}
	table.Render()
	return nil
}
