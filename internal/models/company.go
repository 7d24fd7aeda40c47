package models

// FundingRound is a single disclosed funding event for a company.
type FundingRound struct {
	Round  string `json:"round"`
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

// Financials holds the aggregate funding view some report generations
// emit instead of (or in addition to) a per-round list.
type Financials struct {
	TotalRaised string `json:"total_raised"`
	LastRound   string `json:"last_round"`
}

// SWOT holds the four analysis quadrants for a company.
type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Empty reports whether no quadrant has any entry.
func (s SWOT) Empty() bool {
	return len(s.Strengths) == 0 && len(s.Weaknesses) == 0 &&
		len(s.Opportunities) == 0 && len(s.Threats) == 0
}

// CompanyRecord is the raw researched company as extracted from a report
// artifact. Only the fields the review layer inspects are modeled; the
// artifact may carry arbitrary extra structure.
type CompanyRecord struct {
	Name          string         `json:"name"`
	Website       string         `json:"website"`
	Description   string         `json:"description"`
	FundingRounds []FundingRound `json:"funding_rounds"`
	Financials    *Financials    `json:"financials,omitempty"`
	Founders      []string       `json:"founders"`
	TeamSize      string         `json:"team_size"`
	SWOT          SWOT           `json:"swot"`
	Confidence    *float64       `json:"confidence,omitempty"`
}
