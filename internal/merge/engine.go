package merge

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/rd/internal/models"
)

// Backend is the slice of the research backend the engine consumes.
type Backend interface {
	ListProjects(ctx context.Context) ([]models.ProjectRecord, error)
	ListReports(ctx context.Context) ([]models.ReportMeta, error)
	GetReportRaw(ctx context.Context, path string) ([]byte, error)
}

// ProjectCache persists the merged list across runs.
type ProjectCache interface {
	GetProjects(ctx context.Context) ([]models.ProjectRecord, error)
	PutProjects(ctx context.Context, projects []models.ProjectRecord) error
}

// Engine holds the current merged project list and refreshes it from the
// backend on demand. A degraded list is always preferable to an empty
// dashboard, so Refresh never fails: fetch errors downgrade to whatever
// inputs remain.
type Engine struct {
	backend Backend
	cache   ProjectCache
	log     *slog.Logger

	mu      sync.Mutex
	current []models.ProjectRecord
}

// NewEngine creates a merge engine. cache may be nil in tests.
func NewEngine(backend Backend, cache ProjectCache, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{backend: backend, cache: cache, log: log}
}

// Current returns a snapshot of the merged list.
func (e *Engine) Current() []models.ProjectRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ProjectRecord(nil), e.current...)
}

// LoadCached seeds the in-memory list from the on-device cache so the
// dashboard has something to render before the first Refresh completes.
func (e *Engine) LoadCached(ctx context.Context) []models.ProjectRecord {
	if e.cache == nil {
		return nil
	}
	cached, err := e.cache.GetProjects(ctx)
	if err != nil {
		e.log.Warn("project cache read failed", "error", err)
		return e.Current()
	}

	e.mu.Lock()
	if len(e.current) == 0 {
		e.current = cached
	}
	e.mu.Unlock()
	return e.Current()
}

// Refresh fetches backend projects and report artifacts, synthesizes
// legacy records, merges everything with the prior list, and caches the
// result. Individual artifact failures downgrade to minimal fallback
// records; a failed project list fetch downgrades to legacy-only.
func (e *Engine) Refresh(ctx context.Context) []models.ProjectRecord {
	if e.backend == nil {
		e.log.Warn("no backend configured, serving cached projects")
		return e.LoadCached(ctx)
	}

	// Snapshot the prior list before building anything new, so this
	// pass's output cannot feed back into its own override inputs.
	prior := e.Current()

	var remote []models.ProjectRecord
	if fetched, err := e.backend.ListProjects(ctx); err != nil {
		e.log.Warn("project list fetch failed, merging legacy-only", "error", err)
	} else {
		remote = fetched
	}

	var legacy []models.ProjectRecord
	reports, err := e.backend.ListReports(ctx)
	if err != nil {
		e.log.Warn("report list fetch failed", "error", err)
	}
	for _, meta := range reports {
		raw, err := e.backend.GetReportRaw(ctx, meta.Path)
		if err != nil {
			e.log.Warn("report fetch failed, using fallback record",
				"path", meta.Path, "error", err)
			legacy = append(legacy, Fallback(meta))
			continue
		}
		legacy = append(legacy, Synthesize(meta, raw))
	}

	merged := Merge(remote, legacy, prior)

	e.mu.Lock()
	e.current = merged
	e.mu.Unlock()

	e.persist(ctx)
	return merged
}

// SetArchived flips a project's archival annotation. This is the local
// override the merge folds forward on every pass.
func (e *Engine) SetArchived(ctx context.Context, id string, archived bool) (models.ProjectRecord, bool) {
	e.mu.Lock()
	var out models.ProjectRecord
	found := false
	for i := range e.current {
		if e.current[i].ID != id {
			continue
		}
		e.current[i].Archived = archived
		if archived {
			now := time.Now().UTC()
			e.current[i].ArchivedAt = &now
		} else {
			e.current[i].ArchivedAt = nil
		}
		out = e.current[i]
		found = true
		break
	}
	e.mu.Unlock()

	if found {
		e.persist(ctx)
	}
	return out, found
}

// Add inserts a locally-created project. Records without an id get a
// fresh ULID, the same shape as backend-assigned tokens.
func (e *Engine) Add(ctx context.Context, p models.ProjectRecord) models.ProjectRecord {
	if p.ID == "" {
		p.ID = newULID()
	}
	if p.Source == "" {
		p.Source = models.SourceLocal
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	e.mu.Lock()
	e.current = Merge(nil, nil, append(e.current, p))
	e.mu.Unlock()

	e.persist(ctx)
	return p
}

// Remove deletes a project from the list. Deletion is an explicit user
// action; the merge engine itself never drops records.
func (e *Engine) Remove(ctx context.Context, id string) bool {
	e.mu.Lock()
	kept := e.current[:0]
	found := false
	for _, p := range e.current {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	e.current = kept
	e.mu.Unlock()

	if found {
		e.persist(ctx)
	}
	return found
}

func (e *Engine) persist(ctx context.Context) {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	snapshot := append([]models.ProjectRecord(nil), e.current...)
	e.mu.Unlock()
	if err := e.cache.PutProjects(ctx, snapshot); err != nil {
		e.log.Warn("project cache write failed", "error", err)
	}
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
