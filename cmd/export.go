package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/review"
)

var (
	exportFormat string
	exportFilter string
)

var exportCmd = &cobra.Command{
	Use:   "export <scope>",
	Short: "Export review state as JSON, CSV, or Markdown",
	Long:  "Export the (optionally filtered) review view of a scope to stdout.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(args[0])
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportFilter, "filter", "", "Filter: all, pending, approved, rejected, maybe, needs_review, flagged")
	rootCmd.AddCommand(exportCmd)
}

// exportEntry is one company row in the export output.
type exportEntry struct {
	Name   string              `json:"name"`
	Record models.ReviewRecord `json:"record"`
}

func exportRun(scope string) error {
	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}

	if exportFilter != "" {
		f, err := parseFilter(exportFilter)
		if err != nil {
			return err
		}
		ss.Session.Dispatch(review.SetFilter{Filter: f})
	}

	state := ss.Session.State()
	entries := make([]exportEntry, 0)
	for _, name := range state.View() {
		entries = append(entries, exportEntry{Name: name, Record: state.RecordFor(name)})
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"Company", "Status", "Score", "Notes", "Flags", "ReviewedAt"})
		for _, e := range entries {
			score := ""
			if e.Record.Score > 0 {
				score = fmt.Sprintf("%d", e.Record.Score)
			}
			reviewedAt := ""
			if !e.Record.ReviewedAt.IsZero() {
				reviewedAt = e.Record.ReviewedAt.Format("2006-01-02")
			}
			w.Write([]string{e.Name, string(e.Record.Status), score, e.Record.Notes, formatFlags(e.Record.DataFlags), reviewedAt})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# Review: %s\n", scope)
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Company | Status | Score | Notes |")
		fmt.Fprintln(ui.Out, "|---------|--------|-------|-------|")
		for _, e := range entries {
			score := "-"
			if e.Record.Score > 0 {
				score = fmt.Sprintf("%d", e.Record.Score)
			}
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", e.Name, e.Record.Status, score, e.Record.Notes)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}
}
