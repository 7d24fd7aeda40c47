// Package sessions manages the live review sessions, one per project
// scope. Opening a scope wires a review session to its syncer, reconciles
// cache and backend state, and seeds entities plus derived data-quality
// flags from the scope's report artifact. Both the HTTP API and the MCP
// surface share a Manager so a scope is only ever loaded once.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/rd/internal/cache"
	"github.com/joescharf/rd/internal/merge"
	"github.com/joescharf/rd/internal/review"
	"github.com/joescharf/rd/internal/syncer"
)

// Backend is the research-backend surface session management needs. A nil
// Backend degrades every scope to cache-only persistence.
type Backend interface {
	syncer.RemoteStore
	merge.Backend
}

// Entry is one open scope: its review session and the syncer persisting it.
type Entry struct {
	Session *review.Session
	Syncer  *syncer.Syncer
}

// Manager opens and tracks scope sessions.
type Manager struct {
	cache   *cache.Cache
	backend Backend
	engine  *merge.Engine
	quiet   time.Duration
	log     *slog.Logger

	mu   sync.Mutex
	open map[string]*Entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithQuietPeriod overrides the remote-write debounce window.
func WithQuietPeriod(d time.Duration) Option {
	return func(m *Manager) { m.quiet = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a session manager. backend may be nil.
func NewManager(c *cache.Cache, backend Backend, engine *merge.Engine, opts ...Option) *Manager {
	m := &Manager{
		cache:   c,
		backend: backend,
		engine:  engine,
		quiet:   syncer.DefaultQuietPeriod,
		log:     slog.Default(),
		open:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the scope's session, creating and loading it on first use.
// Creation reconciles cache and backend through the syncer, then seeds the
// entity list and derived flags from the scope's report artifact. Every
// failure degrades: a scope always opens, at worst empty and cache-only.
func (m *Manager) Open(ctx context.Context, scope string) *Entry {
	m.mu.Lock()
	if e, ok := m.open[scope]; ok {
		m.mu.Unlock()
		return e
	}
	m.mu.Unlock()

	var remote syncer.RemoteStore
	if m.backend != nil {
		remote = m.backend
	}
	sy := syncer.New(m.cache, remote, scope,
		syncer.WithQuietPeriod(m.quiet), syncer.WithLogger(m.log))
	sess := review.NewSession(scope)
	sess.OnChange(func(st review.State) {
		sy.StateChanged(st.Records)
	})

	records, _, err := sy.Load(ctx)
	if err != nil {
		m.log.Warn("review load degraded to cache", "scope", scope, "error", err)
	}
	if len(records) > 0 {
		sess.Dispatch(review.Load{Records: records})
	}
	m.seedFromReport(ctx, sess, scope)

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.open[scope]; ok {
		// Lost the race; discard ours.
		sy.Close()
		return e
	}
	e := &Entry{Session: sess, Syncer: sy}
	m.open[scope] = e
	return e
}

// seedFromReport loads the scope's report artifact and seeds the session's
// entity list plus derived data-quality flags for never-reviewed companies.
func (m *Manager) seedFromReport(ctx context.Context, sess *review.Session, scope string) {
	if m.backend == nil || m.engine == nil {
		return
	}
	var reportPath string
	for _, p := range m.engine.Current() {
		if p.ID == scope && p.ReportPath != "" {
			reportPath = p.ReportPath
			break
		}
	}
	if reportPath == "" {
		return
	}
	raw, err := m.backend.GetReportRaw(ctx, reportPath)
	if err != nil {
		m.log.Warn("report fetch for seeding failed", "scope", scope, "error", err)
		return
	}
	companies := merge.ExtractCompanies(raw)
	if n := sess.Seed(companies); n > 0 {
		m.log.Info("seeded data-quality flags", "scope", scope, "companies", n)
	}
}

// CloseAll flushes and releases every open session. Called on shutdown so
// sub-quiet-period edits still reach the backend.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.open))
	for _, e := range m.open {
		entries = append(entries, e)
	}
	m.open = make(map[string]*Entry)
	m.mu.Unlock()

	for _, e := range entries {
		if err := e.Syncer.Flush(ctx); err != nil {
			m.log.Warn("flush on close failed", "scope", e.Session.Scope(), "error", err)
		}
		e.Syncer.Close()
	}
}
