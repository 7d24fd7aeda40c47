// Package quality derives data-quality flags from raw company records.
// Detection is pure and deterministic: the same record always yields the
// same flag set, in the same order. It is used once per newly-seen company
// to seed its review record and is never re-run over a record a reviewer
// has already started editing.
package quality

import (
	"strings"

	"github.com/joescharf/rd/internal/models"
)

// lowConfidenceThreshold is the score below which research output is
// flagged for extra scrutiny.
const lowConfidenceThreshold = 0.6

// placeholderWebsites are values report generations emit when the research
// step could not find a real site.
var placeholderWebsites = map[string]struct{}{
	"n/a":           {},
	"na":            {},
	"none":          {},
	"unknown":       {},
	"not available": {},
	"not found":     {},
	"tbd":           {},
	"-":             {},
}

// Detect returns the data-quality flags for a company record. Rules are
// independent and evaluated on every call; the result order is fixed.
func Detect(c models.CompanyRecord) []models.DataFlag {
	var flags []models.DataFlag

	if missingWebsite(c.Website) {
		flags = append(flags, models.FlagMissingWebsite)
	}
	if missingFinancials(c) {
		flags = append(flags, models.FlagMissingFinancials)
	}
	if missingTeam(c) {
		flags = append(flags, models.FlagMissingTeam)
	}
	if c.SWOT.Empty() {
		flags = append(flags, models.FlagMissingSWOT)
	}
	if c.Confidence != nil && *c.Confidence < lowConfidenceThreshold {
		flags = append(flags, models.FlagLowConfidence)
	}

	return flags
}

func missingWebsite(site string) bool {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return true
	}
	_, placeholder := placeholderWebsites[site]
	return placeholder
}

// Funding data appears in either a per-round list or an aggregate block
// depending on report generation; either satisfies the check.
func missingFinancials(c models.CompanyRecord) bool {
	if len(c.FundingRounds) > 0 {
		return false
	}
	if c.Financials != nil && (c.Financials.TotalRaised != "" || c.Financials.LastRound != "") {
		return false
	}
	return true
}

func missingTeam(c models.CompanyRecord) bool {
	return len(c.Founders) == 0 && strings.TrimSpace(c.TeamSize) == ""
}
