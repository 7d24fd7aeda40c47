package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rd/internal/cache"
	"github.com/joescharf/rd/internal/merge"
	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/sessions"
)

type fakeBackend struct {
	mu       sync.Mutex
	reviews  map[string]map[string]models.ReviewRecord
	projects []models.ProjectRecord
	reports  []models.ReportMeta
	raw      map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		reviews: make(map[string]map[string]models.ReviewRecord),
		raw:     make(map[string][]byte),
	}
}

func (f *fakeBackend) GetReviews(_ context.Context, scope string) (bool, map[string]models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs, ok := f.reviews[scope]
	return ok, recs, nil
}

func (f *fakeBackend) PutReviews(_ context.Context, scope string, records map[string]models.ReviewRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[scope] = records
	return nil
}

func (f *fakeBackend) ListProjects(_ context.Context) ([]models.ProjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects, nil
}

func (f *fakeBackend) ListReports(_ context.Context) ([]models.ReportMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports, nil
}

func (f *fakeBackend) GetReportRaw(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw[path], nil
}

func setupTestServer(t *testing.T) (*Server, *fakeBackend, *cache.Cache) {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, c.Migrate(context.Background()))
	t.Cleanup(func() { c.Close() })

	fb := newFakeBackend()
	engine := merge.NewEngine(fb, c, slog.Default())
	mgr := sessions.NewManager(c, fb, engine, sessions.WithQuietPeriod(10*time.Millisecond))
	srv := NewServer(fb, engine, mgr)
	t.Cleanup(func() { srv.Close(context.Background()) })

	return srv, fb, c
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestReviewState_FreshScope(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/review/proj-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var st stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "proj-1", st.Scope)
	assert.Empty(t, st.Records)
	assert.Equal(t, 0, st.Cursor)
}

func TestReviewCommand_SetStatusWritesCache(t *testing.T) {
	srv, _, c := setupTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/api/v1/review/proj-1/commands",
		`{"type":"set_status","entity":"acme-winery","status":"approved"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var st stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, models.ReviewStatusApproved, st.Records["acme-winery"].Status)

	recs, err := c.GetReviews(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, recs["acme-winery"].Status)
}

func TestReviewCommand_ReachesBackendAfterQuietPeriod(t *testing.T) {
	srv, fb, _ := setupTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/api/v1/review/proj-1/commands",
		`{"type":"set_score","entity":"acme-winery","score":4}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		recs, ok := fb.reviews["proj-1"]
		return ok && recs["acme-winery"].Score == 4
	}, time.Second, 5*time.Millisecond)
}

func TestReviewCommand_Validation(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/api/v1/review/p/commands", `{"type":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/api/v1/review/p/commands", `{"type":"set_status","status":"approved"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/api/v1/review/p/commands", `{"type":"set_status","entity":"x","status":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/api/v1/review/p/commands", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewLoad_MergesBackendCopy(t *testing.T) {
	srv, fb, _ := setupTestServer(t)
	fb.reviews["proj-1"] = map[string]models.ReviewRecord{
		"acme-winery": {Status: models.ReviewStatusRejected},
	}
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/review/proj-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var st stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, models.ReviewStatusRejected, st.Records["acme-winery"].Status)
}

func TestReviewView_FilterAndStats(t *testing.T) {
	srv, fb, _ := setupTestServer(t)
	fb.projects = []models.ProjectRecord{{
		ID:         "p",
		ClientName: "Acme",
		ReportPath: "/reports/p.json",
		CreatedAt:  time.Now(),
	}}
	fb.raw["/reports/p.json"] = []byte(`{"companies":[
		{"name":"a","website":"https://a.com","team_size":"5",
		 "financials":{"total_raised":"1M"},"swot":{"strengths":["x"]},"confidence":0.9},
		{"name":"b","website":"https://b.com","team_size":"9",
		 "financials":{"total_raised":"3M"},"swot":{"strengths":["y"]},"confidence":0.8}
	]}`)
	srv.engine.Refresh(context.Background())
	router := srv.Router()

	postJSON(t, router, "/api/v1/review/p/commands", `{"type":"set_status","entity":"a","status":"approved"}`)
	postJSON(t, router, "/api/v1/review/p/commands", `{"type":"set_status","entity":"b","status":"rejected"}`)
	postJSON(t, router, "/api/v1/review/p/commands", `{"type":"set_filter","filter":"approved"}`)

	req := httptest.NewRequest("GET", "/api/v1/review/p/view", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []viewEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)

	req = httptest.NewRequest("GET", "/api/v1/review/p/current", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var cur viewEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
	assert.Equal(t, "a", cur.Name)

	req = httptest.NewRequest("GET", "/api/v1/review/p/stats", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var st models.ReviewStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Approved)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, 2, st.Reviewed)
	assert.Equal(t, 100, st.PercentComplete)
}

func TestSeedFromReport_DerivesFlags(t *testing.T) {
	srv, fb, _ := setupTestServer(t)
	fb.projects = []models.ProjectRecord{{
		ID:          "proj-1",
		ClientName:  "Acme",
		ProjectName: "wine-market",
		ReportPath:  "/reports/wine.json",
		CreatedAt:   time.Now(),
	}}
	fb.raw["/reports/wine.json"] = []byte(`{
		"client_name": "Acme",
		"companies": [
			{"name": "acme-winery", "website": "", "team_size": "12",
			 "financials": {"total_raised": "2M"},
			 "swot": {"strengths": ["brand"]}, "confidence": 0.9}
		]
	}`)
	srv.engine.Refresh(context.Background())
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/review/proj-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var st stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Contains(t, st.Entities, "acme-winery")
	rec := st.Records["acme-winery"]
	assert.Equal(t, models.ReviewStatusNeedsReview, rec.Status)
	assert.Contains(t, rec.DataFlags, models.FlagMissingWebsite)
	assert.NotContains(t, rec.DataFlags, models.FlagMissingTeam)
}

func TestProjects_API(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	// Create
	w := postJSON(t, router, "/api/v1/projects", `{"client_name":"Acme","project_name":"wine"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.ProjectRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.SourceLocal, created.Source)

	// List
	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var projects []models.ProjectRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	assert.Len(t, projects, 1)

	// Archive hides it from the default listing
	w = postJSON(t, router, "/api/v1/projects/"+created.ID+"/archive", "")
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/projects", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	assert.Empty(t, projects)

	req = httptest.NewRequest("GET", "/api/v1/projects?archived=true", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.True(t, projects[0].Archived)

	// Unarchive, then delete
	w = postJSON(t, router, "/api/v1/projects/"+created.ID+"/unarchive", "")
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("DELETE", "/api/v1/projects/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProjects_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/api/v1/projects/nope/archive", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest("DELETE", "/api/v1/projects/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProject_RequiresName(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/api/v1/projects", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports_API(t *testing.T) {
	srv, fb, _ := setupTestServer(t)
	fb.reports = []models.ReportMeta{{Path: "/reports/a.json", TotalCompanies: 3}}
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/reports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var reports []models.ReportMeta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 3, reports[0].TotalCompanies)
}

func TestCORS(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("OPTIONS", "/api/v1/projects", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestFlush_PushesPendingWrite(t *testing.T) {
	srv, fb, _ := setupTestServer(t)
	router := srv.Router()

	postJSON(t, router, "/api/v1/review/proj-1/commands",
		`{"type":"set_notes","entity":"acme-winery","notes":"solid"}`)

	w := postJSON(t, router, "/api/v1/review/proj-1/flush", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, "solid", fb.reviews["proj-1"]["acme-winery"].Notes)
}
