package sessions

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rd/internal/cache"
	"github.com/joescharf/rd/internal/merge"
	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/review"
)

type fakeBackend struct {
	mu       sync.Mutex
	reviews  map[string]map[string]models.ReviewRecord
	projects []models.ProjectRecord
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
	return f.projects, nil
}

func (f *fakeBackend) ListReports(_ context.Context) ([]models.ReportMeta, error) {
	return nil, nil
}

func (f *fakeBackend) GetReportRaw(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw[path], nil
}

func newTestManager(t *testing.T, fb *fakeBackend) *Manager {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, c.Migrate(context.Background()))
	t.Cleanup(func() { c.Close() })

	var backend Backend
	var engine *merge.Engine
	if fb != nil {
		backend = fb
		engine = merge.NewEngine(fb, c, slog.Default())
		engine.Refresh(context.Background())
	}
	return NewManager(c, backend, engine, WithQuietPeriod(10*time.Millisecond))
}

func TestOpen_ReturnsSameEntry(t *testing.T) {
	m := newTestManager(t, newFakeBackend())

	a := m.Open(context.Background(), "proj-1")
	b := m.Open(context.Background(), "proj-1")
	assert.Same(t, a, b)

	other := m.Open(context.Background(), "proj-2")
	assert.NotSame(t, a, other)
}

func TestOpen_NilBackendIsCacheOnly(t *testing.T) {
	m := newTestManager(t, nil)

	e := m.Open(context.Background(), "proj-1")
	e.Session.Dispatch(review.SetStatus{Entity: "acme", Status: models.ReviewStatusApproved})

	recs, err := m.cache.GetReviews(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, recs["acme"].Status)
}

func TestOpen_LoadsBackendReviews(t *testing.T) {
	fb := newFakeBackend()
	fb.reviews["proj-1"] = map[string]models.ReviewRecord{
		"acme": {Status: models.ReviewStatusMaybe, Notes: "revisit"},
	}
	m := newTestManager(t, fb)

	e := m.Open(context.Background(), "proj-1")
	st := e.Session.State()
	assert.Equal(t, models.ReviewStatusMaybe, st.Records["acme"].Status)
	assert.Equal(t, "revisit", st.Records["acme"].Notes)
}

func TestOpen_SeedsEntitiesAndFlags(t *testing.T) {
	fb := newFakeBackend()
	fb.projects = []models.ProjectRecord{{
		ID:         "proj-1",
		ClientName: "Acme",
		ReportPath: "/reports/a.json",
		CreatedAt:  time.Now(),
	}}
	fb.raw["/reports/a.json"] = []byte(`{"companies":[
		{"name":"no-site","website":"","team_size":"4",
		 "financials":{"total_raised":"1M"},"swot":{"strengths":["x"]},"confidence":0.9}
	]}`)
	m := newTestManager(t, fb)

	e := m.Open(context.Background(), "proj-1")
	st := e.Session.State()
	require.Contains(t, st.Entities, "no-site")
	assert.Contains(t, st.Records["no-site"].DataFlags, models.FlagMissingWebsite)
	assert.Equal(t, models.ReviewStatusNeedsReview, st.Records["no-site"].Status)
}

func TestCloseAll_FlushesPendingWrites(t *testing.T) {
	fb := newFakeBackend()
	m := newTestManager(t, fb)
	// Long quiet period so the debounce cannot fire on its own.
	m.quiet = time.Minute

	e := m.Open(context.Background(), "proj-1")
	e.Session.Dispatch(review.SetNotes{Entity: "acme", Notes: "ship it"})

	m.CloseAll(context.Background())

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, "ship it", fb.reviews["proj-1"]["acme"].Notes)
}
