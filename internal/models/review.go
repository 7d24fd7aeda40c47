package models

import "time"

// ReviewStatus represents the review state of a company within a project.
type ReviewStatus string

const (
	ReviewStatusPending     ReviewStatus = "pending"
	ReviewStatusApproved    ReviewStatus = "approved"
	ReviewStatusRejected    ReviewStatus = "rejected"
	ReviewStatusMaybe       ReviewStatus = "maybe"
	ReviewStatusNeedsReview ReviewStatus = "needs_review"
)

// Decided reports whether the status was set by a human reviewer.
// needs_review is derived from data-quality flags and does not count.
func (s ReviewStatus) Decided() bool {
	switch s {
	case ReviewStatusApproved, ReviewStatusRejected, ReviewStatusMaybe:
		return true
	}
	return false
}

// DataFlag marks a data-quality problem detected on a company record.
type DataFlag string

const (
	FlagMissingWebsite    DataFlag = "missing_website"
	FlagMissingFinancials DataFlag = "missing_financials"
	FlagMissingTeam       DataFlag = "missing_team"
	FlagMissingSWOT       DataFlag = "missing_swot"
	FlagLowConfidence     DataFlag = "low_confidence"
)

// ReviewRecord holds the review state for a single company.
// Absence of a record means the company is implicitly pending.
type ReviewRecord struct {
	Status     ReviewStatus      `json:"status"`
	Score      int               `json:"score,omitempty"` // 1-5, 0 = unset
	Notes      string            `json:"notes,omitempty"`
	DataFlags  []DataFlag        `json:"data_flags,omitempty"`
	FieldEdits map[string]string `json:"field_edits,omitempty"`
	ReviewedAt time.Time         `json:"reviewed_at"`
}

// HasFlag reports whether the record carries the given data-quality flag.
func (r ReviewRecord) HasFlag(f DataFlag) bool {
	for _, got := range r.DataFlags {
		if got == f {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so reducer transitions never alias prior state.
func (r ReviewRecord) Clone() ReviewRecord {
	out := r
	if r.DataFlags != nil {
		out.DataFlags = append([]DataFlag(nil), r.DataFlags...)
	}
	if r.FieldEdits != nil {
		out.FieldEdits = make(map[string]string, len(r.FieldEdits))
		for k, v := range r.FieldEdits {
			out.FieldEdits[k] = v
		}
	}
	return out
}

// ReviewStats summarizes review progress for one project scope.
type ReviewStats struct {
	Total           int     `json:"total"`
	Reviewed        int     `json:"reviewed"`
	Approved        int     `json:"approved"`
	Rejected        int     `json:"rejected"`
	Maybe           int     `json:"maybe"`
	Pending         int     `json:"pending"`
	Flagged         int     `json:"flagged"`
	AvgScore        float64 `json:"avg_score"`
	PercentComplete int     `json:"percent_complete"`
}
