package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/output"
	"github.com/joescharf/rd/internal/review"
	"github.com/joescharf/rd/internal/sessions"
	"github.com/joescharf/rd/internal/stats"
)

var (
	reviewListFilter string
	reviewListSort   string
	reviewSetStatus  string
	reviewSetScore   int
	reviewSetNotes   string
	reviewFlagRemove bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review companies in a project scope",
	Long: `Review companies in a project scope.

Every edit is written to the local cache immediately and synced to the
research backend after a short quiet period. Commands flush pending
writes before exiting.`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list <scope>",
	Short: "List companies and their review state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun(args[0])
	},
}

var reviewSetCmd = &cobra.Command{
	Use:   "set <scope> <company>",
	Short: "Set status, score, or notes for a company",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewSetRun(args[0], args[1])
	},
}

var reviewFlagCmd = &cobra.Command{
	Use:   "flag <scope> <company> <flag>",
	Short: "Add or remove a data-quality flag",
	Long: `Add or remove a data-quality flag on a company.

Known flags: missing_website, missing_financials, missing_team,
missing_swot, low_confidence. Flagging a pending company moves it to
needs_review; removing its last flag moves it back to pending.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewFlagRun(args[0], args[1], args[2])
	},
}

var reviewEditCmd = &cobra.Command{
	Use:   "edit <scope> <company> <field> <value>",
	Short: "Record a corrected field value for a company",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewEditRun(args[0], args[1], args[2], args[3])
	},
}

var reviewClearCmd = &cobra.Command{
	Use:   "clear <scope>",
	Short: "Clear all review state for a scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewClearRun(args[0])
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewListFilter, "filter", "", "Filter: all, pending, approved, rejected, maybe, needs_review, flagged")
	reviewListCmd.Flags().StringVar(&reviewListSort, "sort", "", "Sort: name, status, score, reviewed_at")
	reviewSetCmd.Flags().StringVar(&reviewSetStatus, "status", "", "Status: pending, approved, rejected, maybe, needs_review")
	reviewSetCmd.Flags().IntVar(&reviewSetScore, "score", 0, "Score 1-5 (0 leaves unchanged)")
	reviewSetCmd.Flags().StringVar(&reviewSetNotes, "notes", "", "Reviewer notes")
	reviewFlagCmd.Flags().BoolVar(&reviewFlagRemove, "remove", false, "Remove the flag instead of adding it")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewSetCmd)
	reviewCmd.AddCommand(reviewFlagCmd)
	reviewCmd.AddCommand(reviewEditCmd)
	reviewCmd.AddCommand(reviewClearCmd)
	rootCmd.AddCommand(reviewCmd)
}

// openScope opens the review session for a scope, seeding its entities
// from the project list.
func openScope(ctx context.Context, scope string) (*sessions.Entry, error) {
	eng, err := getEngine()
	if err != nil {
		return nil, err
	}
	eng.LoadCached(ctx)
	if len(eng.Current()) == 0 && getBackend() != nil {
		eng.Refresh(ctx)
	}

	mgr, err := getManager()
	if err != nil {
		return nil, err
	}
	return mgr.Open(ctx, scope), nil
}

// flushScopes pushes pending writes before the process exits.
func flushScopes(ctx context.Context) {
	if sessionMgr != nil {
		sessionMgr.CloseAll(ctx)
	}
}

func reviewListRun(scope string) error {
	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}

	if reviewListFilter != "" {
		f, err := parseFilter(reviewListFilter)
		if err != nil {
			return err
		}
		ss.Session.Dispatch(review.SetFilter{Filter: f})
	}
	if reviewListSort != "" {
		k, err := parseSort(reviewListSort)
		if err != nil {
			return err
		}
		ss.Session.Dispatch(review.SetSort{Key: k})
	}

	state := ss.Session.State()
	view := state.View()
	if len(view) == 0 {
		ui.Info("No companies in scope %s (filter: %s).", scope, state.Filter)
		return nil
	}

	table := ui.Table([]string{"Company", "Status", "Score", "Flags", "Notes"})
	for _, name := range view {
		rec := state.RecordFor(name)
		score := "-"
		if rec.Score > 0 {
			score = fmt.Sprintf("%d", rec.Score)
		}
		table.Append([]string{
			name,
			output.StatusColor(string(rec.Status)),
			score,
			formatFlags(rec.DataFlags),
			rec.Notes,
		})
	}
	table.Render()

	s := stats.Compute(state.Records, state.Entities)
	fmt.Fprintf(ui.Out, "\n%d/%d reviewed (%s)\n", s.Reviewed, s.Total, output.ProgressColor(s.PercentComplete))
	return nil
}

func reviewSetRun(scope, company string) error {
	if reviewSetStatus == "" && reviewSetScore == 0 && reviewSetNotes == "" {
		return fmt.Errorf("nothing to set: use --status, --score, or --notes")
	}

	var status models.ReviewStatus
	if reviewSetStatus != "" {
		var err error
		status, err = parseStatus(reviewSetStatus)
		if err != nil {
			return err
		}
	}
	if reviewSetScore < 0 || reviewSetScore > 5 {
		return fmt.Errorf("score must be 1-5, got %d", reviewSetScore)
	}

	if dryRun {
		ui.DryRunMsg("Would update %s in scope %s", company, scope)
		return nil
	}

	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}
	defer flushScopes(ctx)

	if status != "" {
		ss.Session.Dispatch(review.SetStatus{Entity: company, Status: status})
	}
	if reviewSetScore > 0 {
		ss.Session.Dispatch(review.SetScore{Entity: company, Score: reviewSetScore})
	}
	if reviewSetNotes != "" {
		ss.Session.Dispatch(review.SetNotes{Entity: company, Notes: reviewSetNotes})
	}

	rec := ss.Session.State().RecordFor(company)
	ui.Success("%s: %s", company, output.StatusColor(string(rec.Status)))
	return nil
}

func reviewFlagRun(scope, company, flag string) error {
	if dryRun {
		ui.DryRunMsg("Would flag %s in scope %s", company, scope)
		return nil
	}

	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}
	defer flushScopes(ctx)

	f := models.DataFlag(flag)
	if reviewFlagRemove {
		ss.Session.Dispatch(review.RemoveFlag{Entity: company, Flag: f})
		ui.Success("Removed flag %s from %s", flag, company)
	} else {
		ss.Session.Dispatch(review.AddFlag{Entity: company, Flag: f})
		ui.Success("Flagged %s with %s", company, flag)
	}
	return nil
}

func reviewEditRun(scope, company, field, value string) error {
	if dryRun {
		ui.DryRunMsg("Would set %s=%q on %s in scope %s", field, value, company, scope)
		return nil
	}

	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}
	defer flushScopes(ctx)

	ss.Session.Dispatch(review.SetFieldEdit{Entity: company, Field: field, Value: value})
	ui.Success("Recorded %s=%q for %s", field, value, company)
	return nil
}

func reviewClearRun(scope string) error {
	if dryRun {
		ui.DryRunMsg("Would clear all review state for scope %s", scope)
		return nil
	}

	ctx := context.Background()
	ss, err := openScope(ctx, scope)
	if err != nil {
		return err
	}
	defer flushScopes(ctx)

	ss.Session.Dispatch(review.ClearAll{})
	ui.Success("Cleared review state for scope %s", scope)
	return nil
}

func parseFilter(s string) (review.Filter, error) {
	switch f := review.Filter(s); f {
	case review.FilterAll, review.FilterPending, review.FilterApproved,
		review.FilterRejected, review.FilterMaybe, review.FilterNeedsReview,
		review.FilterFlagged:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter: %s", s)
}

func parseSort(s string) (review.SortKey, error) {
	switch k := review.SortKey(s); k {
	case review.SortByName, review.SortByStatus, review.SortByScore, review.SortByReviewedAt:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key: %s", s)
}

func parseStatus(s string) (models.ReviewStatus, error) {
	switch st := models.ReviewStatus(s); st {
	case models.ReviewStatusPending, models.ReviewStatusApproved,
		models.ReviewStatusRejected, models.ReviewStatusMaybe,
		models.ReviewStatusNeedsReview:
		return st, nil
	}
	return "", fmt.Errorf("unknown status: %s", s)
}

func formatFlags(flags []models.DataFlag) string {
	if len(flags) == 0 {
		return ""
	}
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
