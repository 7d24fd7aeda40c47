package merge

import (
	"path"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/joescharf/rd/internal/models"
)

// Synthesize builds a ProjectRecord from a raw report artifact. Extraction
// is best-effort over semi-structured JSON or markdown: whatever cannot be
// found is simply left empty. It never fails; a completely unreadable
// artifact still yields the Fallback record.
func Synthesize(meta models.ReportMeta, raw []byte) models.ProjectRecord {
	rec := Fallback(meta)
	if len(raw) == 0 {
		return rec
	}

	if gjson.ValidBytes(raw) {
		synthesizeJSON(&rec, raw)
	} else {
		synthesizeMarkdown(&rec, string(raw))
	}
	return rec
}

// Fallback is the minimal record for an artifact that could not be fetched
// or parsed: just path, synthetic id, timestamp, and company count.
func Fallback(meta models.ReportMeta) models.ProjectRecord {
	return models.ProjectRecord{
		ID:           SyntheticID(meta.Path),
		ProjectName:  projectNameFromPath(meta.Path),
		Status:       "completed",
		ReportPath:   meta.Path,
		CompanyCount: meta.TotalCompanies,
		Source:       models.SourceLegacy,
		CreatedAt:    meta.Timestamp,
		UpdatedAt:    meta.Timestamp,
	}
}

func synthesizeJSON(rec *models.ProjectRecord, raw []byte) {
	rec.ClientName = firstString(raw, "client_name", "client", "metadata.client")
	if name := firstString(raw, "project_name", "title", "metadata.title"); name != "" {
		rec.ProjectName = name
	}
	rec.Brief = firstString(raw, "thesis", "executive_summary", "brief", "kpis", "value_chain")
	rec.Framework = firstString(raw, "framework.name", "framework", "report_type")

	// Cheap structural count, not a full parse.
	if companies := gjson.GetBytes(raw, "companies"); companies.IsArray() {
		rec.CompanyCount = len(companies.Array())
	}
}

// synthesizeMarkdown scrapes a markdown-shaped artifact: the first
// paragraph under a recognized section heading becomes the brief, and
// level-3 headings approximate the company count.
func synthesizeMarkdown(rec *models.ProjectRecord, raw string) {
	lines := strings.Split(raw, "\n")

	if title := markdownTitle(lines); title != "" {
		rec.ProjectName = title
	}
	for _, section := range []string{"thesis", "kpi", "value chain", "summary"} {
		if body := markdownSection(lines, section); body != "" {
			rec.Brief = body
			break
		}
	}

	count := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "### ") {
			count++
		}
	}
	if count > 0 {
		rec.CompanyCount = count
	}
}

// ExtractCompanies pulls the researched company list out of a JSON report
// artifact; non-JSON or company-less artifacts yield nil.
func ExtractCompanies(raw []byte) []models.CompanyRecord {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	list := gjson.GetBytes(raw, "companies")
	if !list.IsArray() {
		return nil
	}

	var companies []models.CompanyRecord
	for _, item := range list.Array() {
		name := firstResult(item, "name", "company_name").String()
		if name == "" {
			continue
		}
		c := models.CompanyRecord{
			Name:        name,
			Website:     firstResult(item, "website", "url").String(),
			Description: item.Get("description").String(),
			TeamSize:    firstResult(item, "team_size", "team.size").String(),
		}

		for _, round := range item.Get("funding_rounds").Array() {
			c.FundingRounds = append(c.FundingRounds, models.FundingRound{
				Round:  round.Get("round").String(),
				Amount: round.Get("amount").String(),
				Date:   round.Get("date").String(),
			})
		}
		if fin := item.Get("financials"); fin.Exists() {
			c.Financials = &models.Financials{
				TotalRaised: fin.Get("total_raised").String(),
				LastRound:   fin.Get("last_round").String(),
			}
		}
		for _, f := range firstResult(item, "founders", "team.founders").Array() {
			c.Founders = append(c.Founders, f.String())
		}
		c.SWOT = models.SWOT{
			Strengths:     stringList(item, "swot.strengths"),
			Weaknesses:    stringList(item, "swot.weaknesses"),
			Opportunities: stringList(item, "swot.opportunities"),
			Threats:       stringList(item, "swot.threats"),
		}
		if conf := item.Get("confidence"); conf.Exists() {
			v := conf.Float()
			c.Confidence = &v
		}

		companies = append(companies, c)
	}
	return companies
}

func firstString(raw []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(raw, p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func firstResult(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func stringList(r gjson.Result, path string) []string {
	var out []string
	for _, v := range r.Get(path).Array() {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func projectNameFromPath(p string) string {
	base := path.Base(p)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}

func markdownTitle(lines []string) string {
	for _, line := range lines {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// markdownSection returns the first paragraph under the first heading whose
// text contains want (case-insensitive).
func markdownSection(lines []string, want string) string {
	inSection := false
	var body []string
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			if inSection {
				break
			}
			heading := strings.ToLower(strings.TrimLeft(line, "# "))
			inSection = strings.Contains(heading, want)
			continue
		}
		if !inSection {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(body) > 0 {
				break
			}
			continue
		}
		body = append(body, trimmed)
	}
	return strings.Join(body, " ")
}
