// Package review implements the review state machine for a project's
// researched companies: a pure reducer over an explicit command set, a
// filtered/sorted navigation view, and a concurrency-safe session wrapper.
// The reducer does no I/O and never fails; persistence hangs off session
// change notifications.
package review

import (
	"time"

	"github.com/joescharf/rd/internal/models"
)

// Filter selects which companies are visible in the navigation view.
type Filter string

const (
	FilterAll         Filter = "all"
	FilterPending     Filter = "pending"
	FilterApproved    Filter = "approved"
	FilterRejected    Filter = "rejected"
	FilterMaybe       Filter = "maybe"
	FilterNeedsReview Filter = "needs_review"
	FilterFlagged     Filter = "flagged"
)

// SortKey orders the navigation view.
type SortKey string

const (
	SortByName       SortKey = "name"
	SortByStatus     SortKey = "status"
	SortByScore      SortKey = "score"
	SortByReviewedAt SortKey = "reviewed_at"
)

// State is the complete review state for one session. Records is keyed by
// company name; companies with no record are implicitly pending. Cursor is
// positional within the current filtered+sorted view and is clamped
// whenever the view changes.
type State struct {
	Records  map[string]models.ReviewRecord
	Entities []string
	Cursor   int
	Filter   Filter
	Sort     SortKey
}

// NewState returns an empty state with default view settings.
func NewState() State {
	return State{
		Records: map[string]models.ReviewRecord{},
		Filter:  FilterAll,
		Sort:    SortByName,
	}
}

// Command is a state transition request. The concrete types below form the
// full command set; anything else is ignored by Reduce.
type Command interface{ isCommand() }

type SetStatus struct {
	Entity string
	Status models.ReviewStatus
}

type SetScore struct {
	Entity string
	Score  int
}

type SetNotes struct {
	Entity string
	Notes  string
}

// AddFlag inserts a data-quality flag. Auto marks flags folded in by the
// deriver when a company is first seen; those do not stamp ReviewedAt.
type AddFlag struct {
	Entity string
	Flag   models.DataFlag
	Auto   bool
}

type RemoveFlag struct {
	Entity string
	Flag   models.DataFlag
}

type SetFieldEdit struct {
	Entity string
	Field  string
	Value  string
}

type SetFilter struct{ Filter Filter }

type SetSort struct{ Key SortKey }

type SetIndex struct{ Index int }

type Next struct{}

type Prev struct{}

// Load bulk-replaces the record map. Only the persistence layer's load
// path dispatches it.
type Load struct{ Records map[string]models.ReviewRecord }

// SetEntities replaces the scope's company name list the view is built from.
type SetEntities struct{ Entities []string }

type ClearAll struct{}

func (SetStatus) isCommand()    {}
func (SetScore) isCommand()     {}
func (SetNotes) isCommand()     {}
func (AddFlag) isCommand()      {}
func (RemoveFlag) isCommand()   {}
func (SetFieldEdit) isCommand() {}
func (SetFilter) isCommand()    {}
func (SetSort) isCommand()      {}
func (SetIndex) isCommand()     {}
func (Next) isCommand()         {}
func (Prev) isCommand()         {}
func (Load) isCommand()         {}
func (SetEntities) isCommand()  {}
func (ClearAll) isCommand()     {}

// MutatesRecords reports whether a command changes review content (as
// opposed to navigation or view settings). Persistence only cares about
// these.
func MutatesRecords(cmd Command) bool {
	switch cmd.(type) {
	case SetStatus, SetScore, SetNotes, AddFlag, RemoveFlag, SetFieldEdit, ClearAll:
		return true
	}
	return false
}

// Reduce applies one command and returns the next state. It is pure and
// total: the input state is never modified, unknown entities get a default
// record synthesized first, and no command can fail. now is the timestamp
// used for ReviewedAt stamps; passing it in keeps the function
// deterministic.
func Reduce(s State, cmd Command, now time.Time) State {
	switch c := cmd.(type) {
	case SetStatus:
		return mutateRecord(s, c.Entity, now, true, func(r *models.ReviewRecord) {
			r.Status = c.Status
		})

	case SetScore:
		score := c.Score
		if score < 0 {
			score = 0
		}
		if score > 5 {
			score = 5
		}
		return mutateRecord(s, c.Entity, now, true, func(r *models.ReviewRecord) {
			r.Score = score
		})

	case SetNotes:
		return mutateRecord(s, c.Entity, now, true, func(r *models.ReviewRecord) {
			r.Notes = c.Notes
		})

	case AddFlag:
		return mutateRecord(s, c.Entity, now, !c.Auto, func(r *models.ReviewRecord) {
			if !r.HasFlag(c.Flag) {
				r.DataFlags = append(r.DataFlags, c.Flag)
			}
			// Open data-quality issues surface as needs_review, but only
			// while no human has decided anything.
			if len(r.DataFlags) > 0 && r.Status == models.ReviewStatusPending {
				r.Status = models.ReviewStatusNeedsReview
			}
		})

	case RemoveFlag:
		return mutateRecord(s, c.Entity, now, true, func(r *models.ReviewRecord) {
			kept := r.DataFlags[:0]
			for _, f := range r.DataFlags {
				if f != c.Flag {
					kept = append(kept, f)
				}
			}
			r.DataFlags = kept
			// Removing the last flag never reverts status.
		})

	case SetFieldEdit:
		return mutateRecord(s, c.Entity, now, true, func(r *models.ReviewRecord) {
			if r.FieldEdits == nil {
				r.FieldEdits = map[string]string{}
			}
			r.FieldEdits[c.Field] = c.Value
		})

	case SetFilter:
		next := s
		next.Filter = c.Filter
		next.Cursor = 0
		return next

	case SetSort:
		next := s
		next.Sort = c.Key
		next.Cursor = 0
		return next

	case SetIndex:
		next := s
		next.Cursor = clampCursor(c.Index, len(next.View()))
		return next

	case Next:
		next := s
		if next.Cursor < len(next.View())-1 {
			next.Cursor++
		}
		return next

	case Prev:
		next := s
		if next.Cursor > 0 {
			next.Cursor--
		}
		return next

	case Load:
		next := s
		next.Records = make(map[string]models.ReviewRecord, len(c.Records))
		for name, r := range c.Records {
			next.Records[name] = r.Clone()
		}
		next.Cursor = clampCursor(next.Cursor, len(next.View()))
		return next

	case SetEntities:
		next := s
		next.Entities = append([]string(nil), c.Entities...)
		next.Cursor = clampCursor(next.Cursor, len(next.View()))
		return next

	case ClearAll:
		next := s
		next.Records = map[string]models.ReviewRecord{}
		next.Cursor = 0
		next.Filter = FilterAll
		next.Sort = SortByName
		return next
	}

	return s
}

// mutateRecord clones the record map, applies fn to a copy of the entity's
// record (synthesizing a pending default if none exists), and stamps
// ReviewedAt with now when stamp is set.
func mutateRecord(s State, entity string, now time.Time, stamp bool, fn func(*models.ReviewRecord)) State {
	next := s
	next.Records = make(map[string]models.ReviewRecord, len(s.Records)+1)
	for name, r := range s.Records {
		next.Records[name] = r
	}

	rec, ok := next.Records[entity]
	if !ok {
		rec = models.ReviewRecord{Status: models.ReviewStatusPending}
	} else {
		rec = rec.Clone()
	}

	fn(&rec)
	if stamp {
		rec.ReviewedAt = now
	}
	next.Records[entity] = rec
	// A record change can shrink the filtered view out from under the
	// cursor (e.g. approving the last pending item while filtered on
	// pending), so re-clamp.
	next.Cursor = clampCursor(next.Cursor, len(next.View()))
	return next
}

func clampCursor(i, viewLen int) int {
	if viewLen == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i > viewLen-1 {
		return viewLen - 1
	}
	return i
}
