// Package stats computes review-progress statistics for a single project
// scope. The review record map is a flat keyspace that can hold entries
// for several projects at once, so every computation intersects against
// the scope's own company list rather than trusting the map.
package stats

import (
	"math"

	"github.com/joescharf/rd/internal/models"
)

// Compute derives statistics for the scope whose companies are listed in
// entities. Companies without a record still count toward Total; records
// outside the entity set are ignored entirely.
func Compute(records map[string]models.ReviewRecord, entities []string) models.ReviewStats {
	st := models.ReviewStats{Total: len(entities)}

	scoreSum, scored := 0, 0
	for _, name := range entities {
		rec, ok := records[name]
		if !ok {
			st.Pending++
			continue
		}

		switch rec.Status {
		case models.ReviewStatusApproved:
			st.Approved++
		case models.ReviewStatusRejected:
			st.Rejected++
		case models.ReviewStatusMaybe:
			st.Maybe++
		default:
			// pending and needs_review both await a human decision
			st.Pending++
		}

		if len(rec.DataFlags) > 0 {
			st.Flagged++
		}
		if rec.Score > 0 {
			scoreSum += rec.Score
			scored++
		}
	}

	st.Reviewed = st.Approved + st.Rejected + st.Maybe
	if scored > 0 {
		st.AvgScore = float64(scoreSum) / float64(scored)
	}
	if st.Total > 0 {
		st.PercentComplete = int(math.Round(float64(st.Reviewed) / float64(st.Total) * 100))
	}
	return st
}
