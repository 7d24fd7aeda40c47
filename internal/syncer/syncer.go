// Package syncer implements the dual-write persistence for review state:
// every change is written through to the on-device cache immediately, and
// to the backend after a debounced quiet period. Remote writes are gated
// until the backend copy for the scope has been loaded, so a fresh or
// stale local state can never overwrite reviews that only exist remotely.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/rd/internal/models"
)

// DefaultQuietPeriod is how long the syncer waits after the last mutation
// before issuing a remote write.
const DefaultQuietPeriod = time.Second

const remoteWriteTimeout = 15 * time.Second

// RemoteStore is the backend surface the syncer needs.
type RemoteStore interface {
	GetReviews(ctx context.Context, scope string) (bool, map[string]models.ReviewRecord, error)
	PutReviews(ctx context.Context, scope string, records map[string]models.ReviewRecord) error
}

// LocalCache is the on-device surface the syncer needs.
type LocalCache interface {
	GetReviews(ctx context.Context, scope string) (map[string]models.ReviewRecord, error)
	PutReviews(ctx context.Context, scope string, records map[string]models.ReviewRecord) error
}

// Syncer coordinates one scope's review persistence. With an empty scope it
// degrades to cache-only: the remote path is never armed.
type Syncer struct {
	cache  LocalCache
	remote RemoteStore
	scope  string
	quiet  time.Duration
	log    *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]models.ReviewRecord
	loading bool
	loaded  bool
	closed  bool

	writes sync.WaitGroup
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithQuietPeriod overrides the debounce window. Tests use short windows.
func WithQuietPeriod(d time.Duration) Option {
	return func(s *Syncer) { s.quiet = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Syncer) { s.log = log }
}

// New creates a syncer for one scope. remote may be nil (cache-only mode).
func New(cache LocalCache, remote RemoteStore, scope string, opts ...Option) *Syncer {
	s := &Syncer{
		cache:  cache,
		remote: remote,
		scope:  scope,
		quiet:  DefaultQuietPeriod,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loaded reports whether the remote copy has been reconciled and the
// remote write path is open.
func (s *Syncer) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Load reconciles the scope's state: read the cache, fetch the remote
// copy, merge remote-wins at whole-record granularity, refresh the cache,
// and open the remote write gate. It returns the merged record map and
// whether the remote had any state.
//
// A second Load for the same scope while one is in flight or complete is a
// no-op returning (nil, false, nil). If the remote fetch fails the gate
// stays shut — better to keep writes suppressed than risk clobbering
// reviews we could not read — and a later Load may retry.
func (s *Syncer) Load(ctx context.Context) (map[string]models.ReviewRecord, bool, error) {
	s.mu.Lock()
	if s.loading || s.loaded || s.closed {
		s.mu.Unlock()
		return nil, false, nil
	}
	s.loading = true
	s.mu.Unlock()

	local, err := s.cache.GetReviews(ctx, s.scope)
	if err != nil {
		s.log.Warn("review cache read failed", "scope", s.scope, "error", err)
		local = map[string]models.ReviewRecord{}
	}

	// No remote scope: cache is all there is. Mark the load complete so
	// the state of the gate is not ambiguous; writes stay local because
	// the scope is empty.
	if s.scope == "" || s.remote == nil {
		s.mu.Lock()
		s.loading = false
		s.loaded = true
		s.mu.Unlock()
		return local, false, nil
	}

	found, remoteRecs, err := s.remote.GetReviews(ctx, s.scope)
	if err != nil {
		s.log.Warn("remote review fetch failed, keeping write gate shut",
			"scope", s.scope, "error", err)
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return local, false, err
	}

	merged := local
	if found && len(remoteRecs) > 0 {
		merged = MergeRemoteWins(local, remoteRecs)
		if err := s.cache.PutReviews(ctx, s.scope, merged); err != nil {
			s.log.Warn("review cache refresh failed", "scope", s.scope, "error", err)
		}
	}

	s.mu.Lock()
	s.loading = false
	s.loaded = true
	s.mu.Unlock()
	return merged, found, nil
}

// MergeRemoteWins merges two record maps. For entities present in both,
// the remote record is taken verbatim; local-only entities are kept.
func MergeRemoteWins(local, remote map[string]models.ReviewRecord) map[string]models.ReviewRecord {
	merged := make(map[string]models.ReviewRecord, len(local)+len(remote))
	for name, rec := range local {
		merged[name] = rec
	}
	for name, rec := range remote {
		merged[name] = rec
	}
	return merged
}

// StateChanged persists a new record map: synchronous cache write, then a
// (re)armed debounce timer for the remote write. Callers pass snapshots
// that are never mutated afterward, so no copy is taken here.
func (s *Syncer) StateChanged(records map[string]models.ReviewRecord) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = records
	s.mu.Unlock()

	// Priority one: the local cache, written on every change regardless
	// of scope or gate.
	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	if err := s.cache.PutReviews(ctx, s.scope, records); err != nil {
		s.log.Warn("review cache write failed", "scope", s.scope, "error", err)
	}
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.scope == "" || s.remote == nil || !s.loaded {
		// Remote path suppressed: no scope, or the load gate is shut.
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.fireRemoteWrite)
}

// fireRemoteWrite runs on timer expiry. The write is fire-and-forget: a
// failure is logged and abandoned, the next mutation re-arms the timer.
func (s *Syncer) fireRemoteWrite() {
	s.mu.Lock()
	if s.closed || !s.loaded {
		s.mu.Unlock()
		return
	}
	records := s.pending
	s.writes.Add(1)
	s.mu.Unlock()
	defer s.writes.Done()

	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	defer cancel()
	if err := s.remote.PutReviews(ctx, s.scope, records); err != nil {
		s.log.Warn("remote review write failed, will retry on next change",
			"scope", s.scope, "error", err)
	}
}

// Flush cancels any pending debounce and writes the latest state to the
// remote immediately, if the gate is open. CLI invocations call it before
// exit so a sub-quiet-period session still reaches the backend.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	records := s.pending
	open := s.loaded && !s.closed && s.scope != "" && s.remote != nil
	s.mu.Unlock()

	s.writes.Wait()
	if !open || records == nil {
		return nil
	}
	return s.remote.PutReviews(ctx, s.scope, records)
}

// Close stops the debounce timer and abandons any pending remote write.
// In-flight writes are not cancelled; their results are simply irrelevant.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}
