package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/rd/internal/merge"
	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/review"
	"github.com/joescharf/rd/internal/sessions"
	"github.com/joescharf/rd/internal/stats"
)

// Server wraps the rd data layer and exposes it as MCP tools.
type Server struct {
	mgr     *sessions.Manager
	engine  *merge.Engine
	backend sessions.Backend
}

// NewServer creates the MCP server wrapper. backend may be nil.
func NewServer(mgr *sessions.Manager, engine *merge.Engine, backend sessions.Backend) *Server {
	return &Server{
		mgr:     mgr,
		engine:  engine,
		backend: backend,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("rd", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.refreshProjectsTool())
	srv.AddTool(s.listReportsTool())
	srv.AddTool(s.projectStatsTool())
	srv.AddTool(s.reviewViewTool())
	srv.AddTool(s.setReviewTool())
	srv.AddTool(s.flagCompanyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// rd_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_list_projects",
		mcp.WithDescription("List research projects from the merged dashboard view. Returns a JSON array with id, client, project name, brief, source (remote/legacy/local), company count, and archived state."),
		mcp.WithBoolean("archived", mcp.Description("Include archived projects (default: false)")),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeArchived := request.GetBool("archived", false)

	projects := s.engine.Current()
	if projects == nil {
		projects = s.engine.LoadCached(ctx)
	}

	type projectOut struct {
		ID           string `json:"id"`
		Client       string `json:"client"`
		Project      string `json:"project"`
		Brief        string `json:"brief,omitempty"`
		Framework    string `json:"framework,omitempty"`
		Source       string `json:"source"`
		CompanyCount int    `json:"company_count"`
		Archived     bool   `json:"archived"`
		CreatedAt    string `json:"created_at"`
	}

	out := make([]projectOut, 0, len(projects))
	for _, p := range projects {
		if p.Archived && !includeArchived {
			continue
		}
		out = append(out, projectOut{
			ID:           p.ID,
			Client:       p.ClientName,
			Project:      p.ProjectName,
			Brief:        p.Brief,
			Framework:    p.Framework,
			Source:       string(p.Source),
			CompanyCount: p.CompanyCount,
			Archived:     p.Archived,
			CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal projects: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rd_refresh_projects
func (s *Server) refreshProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_refresh_projects",
		mcp.WithDescription("Re-fetch the project store and report listing from the backend and rebuild the merged project list. Returns the refreshed count."),
	)
	return tool, s.handleRefreshProjects
}

func (s *Server) handleRefreshProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects := s.engine.Refresh(ctx)
	return mcp.NewToolResultText(fmt.Sprintf(`{"projects":%d}`, len(projects))), nil
}

// rd_list_reports
func (s *Server) listReportsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_list_reports",
		mcp.WithDescription("List report artifacts known to the backend, with path, timestamp, company count, and report type."),
	)
	return tool, s.handleListReports
}

func (s *Server) handleListReports(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.backend == nil {
		return mcp.NewToolResultError("no backend configured"), nil
	}
	reports, err := s.backend.ListReports(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reports: %v", err)), nil
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal reports: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rd_project_stats
func (s *Server) projectStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_project_stats",
		mcp.WithDescription("Get review progress statistics for one project: totals per status, flagged count, average score, and percent complete."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project ID")),
	)
	return tool, s.handleProjectStats
}

func (s *Server) handleProjectStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	st := s.mgr.Open(ctx, scope).Session.State()
	data, err := json.Marshal(stats.Compute(st.Records, st.Entities))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rd_review_view
func (s *Server) reviewViewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_review_view",
		mcp.WithDescription("List a project's companies with their review records, filtered and sorted. Returns a JSON array of {name, status, score, notes, data_flags}."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("filter", mcp.Description("Status filter: all, pending, approved, rejected, maybe, needs_review, flagged (default: all)")),
		mcp.WithString("sort", mcp.Description("Sort key: name, status, score, reviewed_at (default: name)")),
	)
	return tool, s.handleReviewView
}

func (s *Server) handleReviewView(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	sess := s.mgr.Open(ctx, scope).Session
	if f := request.GetString("filter", ""); f != "" {
		sess.Dispatch(review.SetFilter{Filter: review.Filter(f)})
	}
	if k := request.GetString("sort", ""); k != "" {
		sess.Dispatch(review.SetSort{Key: review.SortKey(k)})
	}
	st := sess.State()

	type companyOut struct {
		Name      string            `json:"name"`
		Status    string            `json:"status"`
		Score     int               `json:"score,omitempty"`
		Notes     string            `json:"notes,omitempty"`
		DataFlags []models.DataFlag `json:"data_flags,omitempty"`
	}

	view := st.View()
	out := make([]companyOut, len(view))
	for i, name := range view {
		rec := st.RecordFor(name)
		out[i] = companyOut{
			Name:      name,
			Status:    string(rec.Status),
			Score:     rec.Score,
			Notes:     rec.Notes,
			DataFlags: rec.DataFlags,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal view: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rd_set_review
func (s *Server) setReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_set_review",
		mcp.WithDescription("Set review fields for a company: status, score (1-5), and/or notes. Only provided fields are changed. Returns the resulting record as JSON."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("company", mcp.Required(), mcp.Description("Company name")),
		mcp.WithString("status", mcp.Description("Review status: pending, approved, rejected, maybe, needs_review")),
		mcp.WithNumber("score", mcp.Description("Score 1-5")),
		mcp.WithString("notes", mcp.Description("Reviewer notes")),
	)
	return tool, s.handleSetReview
}

func (s *Server) handleSetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	company, err := request.RequireString("company")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: company"), nil
	}

	sess := s.mgr.Open(ctx, scope).Session

	if status := request.GetString("status", ""); status != "" {
		switch models.ReviewStatus(status) {
		case models.ReviewStatusPending, models.ReviewStatusApproved,
			models.ReviewStatusRejected, models.ReviewStatusMaybe,
			models.ReviewStatusNeedsReview:
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown status: %s", status)), nil
		}
		sess.Dispatch(review.SetStatus{Entity: company, Status: models.ReviewStatus(status)})
	}
	if score := request.GetInt("score", 0); score > 0 {
		sess.Dispatch(review.SetScore{Entity: company, Score: score})
	}
	if notes := request.GetString("notes", ""); notes != "" {
		sess.Dispatch(review.SetNotes{Entity: company, Notes: notes})
	}

	rec := sess.State().RecordFor(company)
	data, err := json.Marshal(rec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal record: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rd_flag_company
func (s *Server) flagCompanyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rd_flag_company",
		mcp.WithDescription("Add or remove a data-quality flag on a company. Flags: missing_website, missing_financials, missing_team, missing_swot, low_confidence."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("company", mcp.Required(), mcp.Description("Company name")),
		mcp.WithString("flag", mcp.Required(), mcp.Description("Data-quality flag name")),
		mcp.WithBoolean("remove", mcp.Description("Remove the flag instead of adding it (default: false)")),
	)
	return tool, s.handleFlagCompany
}

func (s *Server) handleFlagCompany(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	company, err := request.RequireString("company")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: company"), nil
	}
	flag, err := request.RequireString("flag")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: flag"), nil
	}

	sess := s.mgr.Open(ctx, scope).Session
	if request.GetBool("remove", false) {
		sess.Dispatch(review.RemoveFlag{Entity: company, Flag: models.DataFlag(flag)})
	} else {
		sess.Dispatch(review.AddFlag{Entity: company, Flag: models.DataFlag(flag)})
	}

	rec := sess.State().RecordFor(company)
	data, err := json.Marshal(rec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal record: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
