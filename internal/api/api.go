// Package api exposes the review/session state over a local HTTP surface
// for the dashboard renderer. Handlers are thin: decode, dispatch into the
// review session or merge engine, encode the resulting snapshot.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/joescharf/rd/internal/merge"
	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/review"
	"github.com/joescharf/rd/internal/sessions"
	"github.com/joescharf/rd/internal/stats"
)

// Server provides the REST API handlers.
type Server struct {
	backend  sessions.Backend
	engine   *merge.Engine
	sessions *sessions.Manager
}

// NewServer creates a new API server. backend may be nil, in which case
// review state is cache-only and the project list degrades to whatever the
// cache holds.
func NewServer(backend sessions.Backend, engine *merge.Engine, mgr *sessions.Manager) *Server {
	return &Server{
		backend:  backend,
		engine:   engine,
		sessions: mgr,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/projects", s.createProject)
	mux.HandleFunc("POST /api/v1/projects/refresh", s.refreshProjects)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.deleteProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/archive", s.archiveProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/unarchive", s.unarchiveProject)

	mux.HandleFunc("GET /api/v1/reports", s.listReports)
	mux.HandleFunc("GET /api/v1/reports/raw", s.getReportRaw)

	mux.HandleFunc("GET /api/v1/review/{scope}", s.reviewState)
	mux.HandleFunc("GET /api/v1/review/{scope}/view", s.reviewView)
	mux.HandleFunc("GET /api/v1/review/{scope}/current", s.reviewCurrent)
	mux.HandleFunc("GET /api/v1/review/{scope}/stats", s.reviewStats)
	mux.HandleFunc("POST /api/v1/review/{scope}/commands", s.reviewCommand)
	mux.HandleFunc("POST /api/v1/review/{scope}/flush", s.reviewFlush)

	return corsMiddleware(mux)
}

// Close flushes and releases every open scope session. Called on server
// shutdown so sub-quiet-period edits still reach the backend.
func (s *Server) Close(ctx context.Context) {
	s.sessions.CloseAll(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.engine.Current()
	if projects == nil {
		projects = s.engine.LoadCached(r.Context())
	}
	if r.URL.Query().Get("archived") != "true" {
		kept := make([]models.ProjectRecord, 0, len(projects))
		for _, p := range projects {
			if !p.Archived {
				kept = append(kept, p)
			}
		}
		projects = kept
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var p models.ProjectRecord
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.ClientName == "" && p.ProjectName == "" {
		writeError(w, http.StatusBadRequest, "client_name or project_name is required")
		return
	}
	created := s.engine.Add(r.Context(), p)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) refreshProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.engine.Refresh(r.Context())
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.Remove(r.Context(), id) {
		writeError(w, http.StatusNotFound, "project not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) archiveProject(w http.ResponseWriter, r *http.Request) {
	s.setArchived(w, r, true)
}

func (s *Server) unarchiveProject(w http.ResponseWriter, r *http.Request) {
	s.setArchived(w, r, false)
}

func (s *Server) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	id := r.PathValue("id")
	p, ok := s.engine.SetArchived(r.Context(), id, archived)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Reports ---

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "no backend configured")
		return
	}
	reports, err := s.backend.ListReports(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReportRaw(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "no backend configured")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	raw, err := s.backend.GetReportRaw(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(raw)
}

// --- Review sessions ---

type stateResponse struct {
	Scope    string                         `json:"scope"`
	Records  map[string]models.ReviewRecord `json:"records"`
	Entities []string                       `json:"entities"`
	Cursor   int                            `json:"cursor"`
	Filter   review.Filter                  `json:"filter"`
	Sort     review.SortKey                 `json:"sort"`
}

func toStateResponse(scope string, st review.State) stateResponse {
	return stateResponse{
		Scope:    scope,
		Records:  st.Records,
		Entities: st.Entities,
		Cursor:   st.Cursor,
		Filter:   st.Filter,
		Sort:     st.Sort,
	}
}

func (s *Server) reviewState(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	ss := s.sessions.Open(r.Context(), scope)
	writeJSON(w, http.StatusOK, toStateResponse(scope, ss.Session.State()))
}

type viewEntry struct {
	Name   string              `json:"name"`
	Record models.ReviewRecord `json:"record"`
}

func (s *Server) reviewView(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	ss := s.sessions.Open(r.Context(), scope)
	st := ss.Session.State()

	entries := make([]viewEntry, 0)
	for _, name := range st.View() {
		entries = append(entries, viewEntry{Name: name, Record: st.RecordFor(name)})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) reviewCurrent(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	ss := s.sessions.Open(r.Context(), scope)

	name, rec, ok := ss.Session.State().Current()
	if !ok {
		writeError(w, http.StatusNotFound, "view is empty")
		return
	}
	writeJSON(w, http.StatusOK, viewEntry{Name: name, Record: rec})
}

func (s *Server) reviewStats(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	ss := s.sessions.Open(r.Context(), scope)
	st := ss.Session.State()
	writeJSON(w, http.StatusOK, stats.Compute(st.Records, st.Entities))
}

// commandRequest is the wire form of a review command. Type selects the
// command; the remaining fields are read per type.
type commandRequest struct {
	Type   string `json:"type"`
	Entity string `json:"entity,omitempty"`
	Status string `json:"status,omitempty"`
	Score  int    `json:"score,omitempty"`
	Notes  string `json:"notes,omitempty"`
	Flag   string `json:"flag,omitempty"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Filter string `json:"filter,omitempty"`
	Sort   string `json:"sort,omitempty"`
	Index  int    `json:"index,omitempty"`
}

func decodeCommand(req commandRequest) (review.Command, string) {
	needEntity := func() string {
		if req.Entity == "" {
			return "entity is required"
		}
		return ""
	}
	switch req.Type {
	case "set_status":
		if msg := needEntity(); msg != "" {
			return nil, msg
		}
		switch models.ReviewStatus(req.Status) {
		case models.ReviewStatusPending, models.ReviewStatusApproved,
			models.ReviewStatusRejected, models.ReviewStatusMaybe,
			models.ReviewStatusNeedsReview:
		default:
			return nil, "unknown status: " + req.Status
		}
		return review.SetStatus{Entity: req.Entity, Status: models.ReviewStatus(req.Status)}, ""
	case "set_score":
		if msg := needEntity(); msg != "" {
			return nil, msg
		}
		return review.SetScore{Entity: req.Entity, Score: req.Score}, ""
	case "set_notes":
		if msg := needEntity(); msg != "" {
			return nil, msg
		}
		return review.SetNotes{Entity: req.Entity, Notes: req.Notes}, ""
	case "add_flag":
		if msg := needEntity(); msg != "" {
			return nil, msg
		}
		return review.AddFlag{Entity: req.Entity, Flag: models.DataFlag(req.Flag)}, ""
	case "remove_flag":
		if msg := needEntity(); msg != "" {
			return nil, msg
		}
		return review.RemoveFlag{Entity: req.Entity, Flag: models.DataFlag(req.Flag)}, ""
	case "set_field_edit":
		if msg := needEntity(); msg != "" {
			return nil, msg
		}
		if req.Field == "" {
			return nil, "field is required"
		}
		return review.SetFieldEdit{Entity: req.Entity, Field: req.Field, Value: req.Value}, ""
	case "set_filter":
		return review.SetFilter{Filter: review.Filter(req.Filter)}, ""
	case "set_sort":
		return review.SetSort{Key: review.SortKey(req.Sort)}, ""
	case "set_index":
		return review.SetIndex{Index: req.Index}, ""
	case "next":
		return review.Next{}, ""
	case "prev":
		return review.Prev{}, ""
	case "clear_all":
		return review.ClearAll{}, ""
	}
	return nil, "unknown command type: " + req.Type
}

func (s *Server) reviewCommand(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cmd, msg := decodeCommand(req)
	if cmd == nil {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ss := s.sessions.Open(r.Context(), scope)
	next := ss.Session.Dispatch(cmd)
	writeJSON(w, http.StatusOK, toStateResponse(scope, next))
}

func (s *Server) reviewFlush(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	ss := s.sessions.Open(r.Context(), scope)
	if err := ss.Syncer.Flush(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
