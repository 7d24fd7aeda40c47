package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rd/internal/models"
)

func viewState(t *testing.T) State {
	t.Helper()
	s := NewState()
	s = Reduce(s, SetEntities{Entities: []string{"Delta", "alpha", "Charlie", "bravo"}}, t0)
	s = Reduce(s, SetStatus{Entity: "alpha", Status: models.ReviewStatusApproved}, t0)
	s = Reduce(s, SetScore{Entity: "alpha", Score: 3}, t0.Add(time.Minute))
	s = Reduce(s, SetStatus{Entity: "bravo", Status: models.ReviewStatusRejected}, t0.Add(2*time.Minute))
	s = Reduce(s, SetScore{Entity: "bravo", Score: 5}, t0.Add(3*time.Minute))
	s = Reduce(s, AddFlag{Entity: "Charlie", Flag: models.FlagMissingWebsite, Auto: true}, t0)
	return s
}

func TestView_SortByNameCaseInsensitive(t *testing.T) {
	s := viewState(t)
	assert.Equal(t, []string{"alpha", "bravo", "Charlie", "Delta"}, s.View())
}

func TestView_FilterByStatus(t *testing.T) {
	s := viewState(t)

	s = Reduce(s, SetFilter{Filter: FilterApproved}, t0)
	assert.Equal(t, []string{"alpha"}, s.View())

	s = Reduce(s, SetFilter{Filter: FilterNeedsReview}, t0)
	assert.Equal(t, []string{"Charlie"}, s.View())

	// Untouched entities are implicitly pending
	s = Reduce(s, SetFilter{Filter: FilterPending}, t0)
	assert.Equal(t, []string{"Delta"}, s.View())
}

func TestView_FilterFlagged(t *testing.T) {
	s := viewState(t)
	s = Reduce(s, SetFilter{Filter: FilterFlagged}, t0)
	assert.Equal(t, []string{"Charlie"}, s.View())
}

func TestView_SortByScoreDescending(t *testing.T) {
	s := viewState(t)
	s = Reduce(s, SetSort{Key: SortByScore}, t0)
	view := s.View()
	assert.Equal(t, "bravo", view[0])
	assert.Equal(t, "alpha", view[1])
	// Unscored entities sink, ordered by name
	assert.Equal(t, []string{"Charlie", "Delta"}, view[2:])
}

func TestView_SortByReviewedAtRecentFirst(t *testing.T) {
	s := viewState(t)
	s = Reduce(s, SetSort{Key: SortByReviewedAt}, t0)
	view := s.View()
	assert.Equal(t, "bravo", view[0])
	assert.Equal(t, "alpha", view[1])
}

func TestCurrent_FollowsCursor(t *testing.T) {
	s := viewState(t)
	s = Reduce(s, SetIndex{Index: 1}, t0)

	entity, rec, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "bravo", entity)
	assert.Equal(t, models.ReviewStatusRejected, rec.Status)
}

func TestCurrent_EmptyView(t *testing.T) {
	s := NewState()
	_, _, ok := s.Current()
	assert.False(t, ok)

	s = Reduce(s, SetEntities{Entities: []string{"a"}}, t0)
	s = Reduce(s, SetFilter{Filter: FilterApproved}, t0)
	_, _, ok = s.Current()
	assert.False(t, ok)
}
