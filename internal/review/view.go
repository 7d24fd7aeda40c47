package review

import (
	"sort"
	"strings"

	"github.com/joescharf/rd/internal/models"
)

// statusRank orders statuses for SortByStatus: open work first.
var statusRank = map[models.ReviewStatus]int{
	models.ReviewStatusNeedsReview: 0,
	models.ReviewStatusPending:     1,
	models.ReviewStatusMaybe:       2,
	models.ReviewStatusApproved:    3,
	models.ReviewStatusRejected:    4,
}

// RecordFor returns the entity's record, or an implicit pending default.
func (s State) RecordFor(entity string) models.ReviewRecord {
	if r, ok := s.Records[entity]; ok {
		return r
	}
	return models.ReviewRecord{Status: models.ReviewStatusPending}
}

// View returns the scope's entity names after applying the current filter
// and sort. The result is a fresh slice; Cursor indexes into it.
func (s State) View() []string {
	view := make([]string, 0, len(s.Entities))
	for _, name := range s.Entities {
		if s.matches(name) {
			view = append(view, name)
		}
	}
	s.sortView(view)
	return view
}

// Current returns the entity and record under the cursor, or false when
// the view is empty.
func (s State) Current() (string, models.ReviewRecord, bool) {
	view := s.View()
	if len(view) == 0 {
		return "", models.ReviewRecord{}, false
	}
	i := clampCursor(s.Cursor, len(view))
	return view[i], s.RecordFor(view[i]), true
}

func (s State) matches(entity string) bool {
	rec := s.RecordFor(entity)
	switch s.Filter {
	case "", FilterAll:
		return true
	case FilterFlagged:
		return len(rec.DataFlags) > 0
	default:
		return rec.Status == models.ReviewStatus(s.Filter)
	}
}

func (s State) sortView(view []string) {
	byName := func(i, j int) bool {
		return strings.ToLower(view[i]) < strings.ToLower(view[j])
	}

	switch s.Sort {
	case SortByStatus:
		sort.SliceStable(view, func(i, j int) bool {
			ri, rj := statusRank[s.RecordFor(view[i]).Status], statusRank[s.RecordFor(view[j]).Status]
			if ri != rj {
				return ri < rj
			}
			return byName(i, j)
		})
	case SortByScore:
		// Highest score first; unscored records sink to the bottom.
		sort.SliceStable(view, func(i, j int) bool {
			si, sj := s.RecordFor(view[i]).Score, s.RecordFor(view[j]).Score
			if si != sj {
				return si > sj
			}
			return byName(i, j)
		})
	case SortByReviewedAt:
		// Most recently touched first; untouched records sink.
		sort.SliceStable(view, func(i, j int) bool {
			ti, tj := s.RecordFor(view[i]).ReviewedAt, s.RecordFor(view[j]).ReviewedAt
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return byName(i, j)
		})
	default: // SortByName
		sort.SliceStable(view, byName)
	}
}
