package review

import (
	"sync"
	"time"

	"github.com/joescharf/rd/internal/models"
	"github.com/joescharf/rd/internal/quality"
)

// Session wraps a State behind a mutex and fans out change notifications.
// It is the single writer for its state; readers get copy-on-write
// snapshots that remain valid after later dispatches.
type Session struct {
	mu       sync.RWMutex
	scope    string
	state    State
	now      func() time.Time
	onChange func(State)
}

// NewSession creates a session for the given project scope. scope may be
// empty for scratch sessions that only persist to the local cache.
func NewSession(scope string) *Session {
	return &Session{
		scope: scope,
		state: NewState(),
		now:   time.Now,
	}
}

// Scope returns the project scope identifier this session reviews.
func (s *Session) Scope() string { return s.scope }

// OnChange registers the persistence hook. It is invoked, outside the
// session lock, with a state snapshot after every record-mutating command.
func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetClock replaces the timestamp source. Tests use it for deterministic
// ReviewedAt values.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Dispatch applies one command and returns the resulting state snapshot.
func (s *Session) Dispatch(cmd Command) State {
	s.mu.Lock()
	s.state = Reduce(s.state, cmd, s.now())
	next := s.state
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil && MutatesRecords(cmd) {
		fn(next)
	}
	return next
}

// State returns the current state snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Seed installs the scope's company list and folds derived data-quality
// flags into companies that have never been reviewed. Companies with an
// existing record are left untouched; detection only ever runs against
// fresh entities. Returns the number of companies that received flags.
func (s *Session) Seed(companies []models.CompanyRecord) int {
	names := make([]string, 0, len(companies))
	for _, c := range companies {
		names = append(names, c.Name)
	}
	s.Dispatch(SetEntities{Entities: names})

	seeded := 0
	for _, c := range companies {
		if _, exists := s.State().Records[c.Name]; exists {
			continue
		}
		flags := quality.Detect(c)
		for _, f := range flags {
			s.Dispatch(AddFlag{Entity: c.Name, Flag: f, Auto: true})
		}
		if len(flags) > 0 {
			seeded++
		}
	}
	return seeded
}
