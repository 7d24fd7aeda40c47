package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/rd/internal/models"
)

var (
	projectListArchived bool
	projectAddProject   string
	projectAddBrief     string
	projectAddFramework string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage research projects",
	Long: `Manage the merged project list.

Projects come from two places: the research backend (and its legacy
report artifacts) and projects added locally with 'rd project add'.
Archival is a local annotation and survives backend refreshes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <client> [project]",
	Short: "Add a local project",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		return projectAddRun(args[0], name)
	},
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <project>",
	Short: "Remove a project from the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRmRun(args[0])
	},
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive <project>",
	Short: "Archive a project (local annotation)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectArchiveRun(args[0], true)
	},
}

var projectUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <project>",
	Short: "Unarchive a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectArchiveRun(args[0], false)
	},
}

var projectRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the project list from the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRefreshRun()
	},
}

func init() {
	projectListCmd.Flags().BoolVar(&projectListArchived, "archived", false, "Include archived projects")
	projectAddCmd.Flags().StringVar(&projectAddProject, "project", "", "Project name (defaults to client name)")
	projectAddCmd.Flags().StringVar(&projectAddBrief, "brief", "", "One-line project brief")
	projectAddCmd.Flags().StringVar(&projectAddFramework, "framework", "", "Analysis framework label")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectRmCmd)
	projectCmd.AddCommand(projectArchiveCmd)
	projectCmd.AddCommand(projectUnarchiveCmd)
	projectCmd.AddCommand(projectRefreshCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectListRun() error {
	eng, err := getEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	projects := eng.LoadCached(ctx)
	if len(projects) == 0 {
		projects = eng.Refresh(ctx)
	}

	shown := 0
	table := ui.Table([]string{"ID", "Client", "Project", "Source", "Companies", "Status"})
	for _, p := range projects {
		if p.Archived && !projectListArchived {
			continue
		}
		shown++

		status := p.Status
		if p.Archived {
			status = "archived"
		}
		table.Append([]string{
			shortID(p.ID),
			p.ClientName,
			p.ProjectName,
			string(p.Source),
			fmt.Sprintf("%d", p.CompanyCount),
			status,
		})
	}

	if shown == 0 {
		ui.Info("No projects. Use 'rd project add <client>' or 'rd project refresh'.")
		return nil
	}

	table.Render()
	return nil
}

func projectAddRun(client, name string) error {
	eng, err := getEngine()
	if err != nil {
		return err
	}

	if name == "" {
		name = client
	}

	if dryRun {
		ui.DryRunMsg("Would add project %s / %s", client, name)
		return nil
	}

	ctx := context.Background()
	eng.LoadCached(ctx)
	created := eng.Add(ctx, models.ProjectRecord{
		ClientName:  client,
		ProjectName: name,
		Brief:       projectAddBrief,
		Framework:   projectAddFramework,
	})

	ui.Success("Added project %s (%s)", created.ProjectName, shortID(created.ID))
	return nil
}

func projectRmRun(ref string) error {
	eng, err := getEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng.LoadCached(ctx)
	p, err := resolveProject(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove project %s (%s)", p.ProjectName, shortID(p.ID))
		return nil
	}

	if !eng.Remove(ctx, p.ID) {
		return fmt.Errorf("project not found: %s", ref)
	}
	ui.Success("Removed project %s", p.ProjectName)
	return nil
}

func projectArchiveRun(ref string, archived bool) error {
	eng, err := getEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng.LoadCached(ctx)
	p, err := resolveProject(ctx, ref)
	if err != nil {
		return err
	}

	verb := "archive"
	if !archived {
		verb = "unarchive"
	}
	if dryRun {
		ui.DryRunMsg("Would %s project %s (%s)", verb, p.ProjectName, shortID(p.ID))
		return nil
	}

	updated, ok := eng.SetArchived(ctx, p.ID, archived)
	if !ok {
		return fmt.Errorf("project not found: %s", ref)
	}
	ui.Success("%sd project %s", strings.ToUpper(verb[:1])+verb[1:], updated.ProjectName)
	return nil
}

func projectRefreshRun() error {
	if _, err := requireBackend(); err != nil {
		return err
	}
	eng, err := getEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng.LoadCached(ctx)
	projects := eng.Refresh(ctx)

	ui.Success("Refreshed %d projects", len(projects))
	return projectListRun()
}

// resolveProject finds a project by ID, ID prefix, or name match.
func resolveProject(ctx context.Context, ref string) (models.ProjectRecord, error) {
	eng, err := getEngine()
	if err != nil {
		return models.ProjectRecord{}, err
	}

	var matches []models.ProjectRecord
	for _, p := range eng.Current() {
		if p.ID == ref {
			return p, nil
		}
		if strings.HasPrefix(p.ID, ref) ||
			strings.EqualFold(p.ClientName, ref) ||
			strings.EqualFold(p.ProjectName, ref) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.ProjectRecord{}, fmt.Errorf("project not found: %s", ref)
	default:
		names := make([]string, len(matches))
		for i, p := range matches {
			names[i] = fmt.Sprintf("%s (%s)", p.ProjectName, shortID(p.ID))
		}
		return models.ProjectRecord{}, fmt.Errorf("ambiguous project %q: %s", ref, strings.Join(names, ", "))
	}
}

// shortID truncates ULIDs and legacy IDs for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
