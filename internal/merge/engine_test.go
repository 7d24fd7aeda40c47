package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rd/internal/models"
)

type fakeBackend struct {
	projects    []models.ProjectRecord
	projectsErr error
	reports     []models.ReportMeta
	reportsErr  error
	raw         map[string][]byte
	rawErr      map[string]error
}

func (f *fakeBackend) ListProjects(ctx context.Context) ([]models.ProjectRecord, error) {
	return f.projects, f.projectsErr
}

func (f *fakeBackend) ListReports(ctx context.Context) ([]models.ReportMeta, error) {
	return f.reports, f.reportsErr
}

func (f *fakeBackend) GetReportRaw(ctx context.Context, path string) ([]byte, error) {
	if err := f.rawErr[path]; err != nil {
		return nil, err
	}
	return f.raw[path], nil
}

type fakeProjectCache struct {
	stored []models.ProjectRecord
	puts   int
}

func (f *fakeProjectCache) GetProjects(ctx context.Context) ([]models.ProjectRecord, error) {
	return f.stored, nil
}

func (f *fakeProjectCache) PutProjects(ctx context.Context, projects []models.ProjectRecord) error {
	f.stored = projects
	f.puts++
	return nil
}

func TestRefresh_MergesRemoteAndLegacy(t *testing.T) {
	backend := &fakeBackend{
		projects: []models.ProjectRecord{
			{ID: "r1", ProjectName: "Remote Scan", ReportPath: "/a.json", Source: models.SourceRemote, CreatedAt: tNew},
		},
		reports: []models.ReportMeta{
			{Path: "/a.json", Timestamp: tOld},
			{Path: "/b.json", Timestamp: tOld},
		},
		raw: map[string][]byte{
			"/a.json": []byte(`{"project_name": "A"}`),
			"/b.json": []byte(`{"project_name": "B"}`),
		},
	}
	cache := &fakeProjectCache{}
	e := NewEngine(backend, cache, nil)

	out := e.Refresh(context.Background())
	require.Len(t, out, 2, "path collision resolved in remote's favor")
	assert.Equal(t, "r1", out[0].ID)
	assert.Equal(t, "legacy_b_json", out[1].ID)

	assert.Equal(t, 1, cache.puts, "merged list cached for offline start")
	assert.Equal(t, out, e.Current())
}

func TestRefresh_ProjectFetchFailureDegradesToLegacy(t *testing.T) {
	backend := &fakeBackend{
		projectsErr: errors.New("backend down"),
		reports:     []models.ReportMeta{{Path: "/a.json", Timestamp: tOld}},
		raw:         map[string][]byte{"/a.json": []byte(`{"project_name": "A"}`)},
	}
	e := NewEngine(backend, nil, nil)

	out := e.Refresh(context.Background())
	require.Len(t, out, 1)
	assert.Equal(t, "legacy_a_json", out[0].ID)
}

func TestRefresh_ArtifactFailureYieldsFallbackAndContinues(t *testing.T) {
	backend := &fakeBackend{
		reports: []models.ReportMeta{
			{Path: "/broken.json", Timestamp: tOld, TotalCompanies: 4},
			{Path: "/ok.json", Timestamp: tNew},
		},
		raw:    map[string][]byte{"/ok.json": []byte(`{"project_name": "OK"}`)},
		rawErr: map[string]error{"/broken.json": errors.New("404")},
	}
	e := NewEngine(backend, nil, nil)

	out := e.Refresh(context.Background())
	require.Len(t, out, 2, "one bad artifact must not abort the batch")

	byID := map[string]models.ProjectRecord{}
	for _, p := range out {
		byID[p.ID] = p
	}
	assert.Equal(t, 4, byID["legacy_broken_json"].CompanyCount)
	assert.Equal(t, "OK", byID["legacy_ok_json"].ProjectName)
}

func TestRefresh_ArchivalSurvivesRemerge(t *testing.T) {
	backend := &fakeBackend{
		projects: []models.ProjectRecord{
			{ID: "r1", Source: models.SourceRemote, CreatedAt: tNew},
		},
	}
	e := NewEngine(backend, nil, nil)

	e.Refresh(context.Background())
	_, ok := e.SetArchived(context.Background(), "r1", true)
	require.True(t, ok)

	out := e.Refresh(context.Background())
	require.Len(t, out, 1)
	assert.True(t, out[0].Archived, "local archival must survive a re-merge")
	assert.NotNil(t, out[0].ArchivedAt)
}

func TestRefresh_PriorSurvivesTransientEmptyFetch(t *testing.T) {
	backend := &fakeBackend{
		projects: []models.ProjectRecord{
			{ID: "r1", Source: models.SourceRemote, CreatedAt: tNew},
		},
	}
	e := NewEngine(backend, nil, nil)
	e.Refresh(context.Background())

	backend.projects = nil
	backend.projectsErr = errors.New("flaky")

	out := e.Refresh(context.Background())
	require.Len(t, out, 1, "transient fetch failure must not evict known projects")
	assert.Equal(t, "r1", out[0].ID)
}

func TestAddRemoveAndCachedLoad(t *testing.T) {
	cache := &fakeProjectCache{}
	e := NewEngine(&fakeBackend{}, cache, nil)

	added := e.Add(context.Background(), models.ProjectRecord{ProjectName: "Local Draft"})
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, models.SourceLocal, added.Source)
	assert.Len(t, e.Current(), 1)

	// A fresh engine over the same cache sees the record before any refresh.
	e2 := NewEngine(&fakeBackend{}, cache, nil)
	loaded := e2.LoadCached(context.Background())
	require.Len(t, loaded, 1)
	assert.Equal(t, added.ID, loaded[0].ID)

	assert.True(t, e.Remove(context.Background(), added.ID))
	assert.Empty(t, e.Current())
	assert.False(t, e.Remove(context.Background(), "missing"))
}
