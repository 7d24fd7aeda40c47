package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rd/internal/models"
)

var meta = models.ReportMeta{
	Path:           "reports/wine_tech.json",
	Timestamp:      time.Date(2025, 11, 2, 8, 0, 0, 0, time.UTC),
	TotalCompanies: 7,
	ReportType:     "market_scan",
}

const jsonArtifact = `{
	"client_name": "Vineyard Capital",
	"project_name": "Wine Tech Scan",
	"thesis": "Hardware-enabled viticulture is under-funded.",
	"framework": {"name": "Porter"},
	"companies": [
		{
			"name": "Acme Winery",
			"website": "https://acme.example.com",
			"funding_rounds": [{"round": "Seed", "amount": "$2M", "date": "2024-03"}],
			"founders": ["A. Smith"],
			"swot": {"strengths": ["brand"], "threats": ["weather"]},
			"confidence": 0.85
		},
		{
			"company_name": "Bare Startup",
			"team": {"size": "2-10"},
			"confidence": 0.3
		},
		{"description": "nameless blob, skipped"}
	]
}`

func TestSynthesize_JSONArtifact(t *testing.T) {
	rec := Synthesize(meta, []byte(jsonArtifact))

	assert.Equal(t, "legacy_reports_wine_tech_json", rec.ID)
	assert.Equal(t, "Vineyard Capital", rec.ClientName)
	assert.Equal(t, "Wine Tech Scan", rec.ProjectName)
	assert.Equal(t, "Hardware-enabled viticulture is under-funded.", rec.Brief)
	assert.Equal(t, "Porter", rec.Framework)
	assert.Equal(t, 3, rec.CompanyCount, "structural count of the companies array")
	assert.Equal(t, models.SourceLegacy, rec.Source)
	assert.Equal(t, meta.Timestamp, rec.CreatedAt)
}

func TestSynthesize_MarkdownArtifact(t *testing.T) {
	md := "# Craft Beverage Landscape\n" +
		"\n" +
		"## Thesis\n" +
		"\n" +
		"Regional producers are consolidating.\n" +
		"Distribution is the moat.\n" +
		"\n" +
		"## Companies\n" +
		"\n" +
		"### First Co\n" +
		"### Second Co\n"

	rec := Synthesize(meta, []byte(md))
	assert.Equal(t, "Craft Beverage Landscape", rec.ProjectName)
	assert.Equal(t, "Regional producers are consolidating. Distribution is the moat.", rec.Brief)
	assert.Equal(t, 2, rec.CompanyCount)
}

func TestSynthesize_UnreadableArtifactFallsBack(t *testing.T) {
	rec := Synthesize(meta, nil)
	assert.Equal(t, Fallback(meta), rec)

	// Garbage that is neither JSON nor markdown still yields a usable record.
	rec = Synthesize(meta, []byte("\x00\x01\x02"))
	assert.Equal(t, "legacy_reports_wine_tech_json", rec.ID)
	assert.Equal(t, meta.Path, rec.ReportPath)
	assert.Equal(t, 7, rec.CompanyCount, "falls back to the report listing's count")
}

func TestFallback_MinimalRecord(t *testing.T) {
	rec := Fallback(meta)
	assert.Equal(t, "legacy_reports_wine_tech_json", rec.ID)
	assert.Equal(t, "wine tech", rec.ProjectName)
	assert.Equal(t, meta.Path, rec.ReportPath)
	assert.Equal(t, 7, rec.CompanyCount)
	assert.Equal(t, meta.Timestamp, rec.CreatedAt)
}

func TestExtractCompanies(t *testing.T) {
	companies := ExtractCompanies([]byte(jsonArtifact))
	require.Len(t, companies, 2, "entries without a name are skipped")

	acme := companies[0]
	assert.Equal(t, "Acme Winery", acme.Name)
	assert.Equal(t, "https://acme.example.com", acme.Website)
	require.Len(t, acme.FundingRounds, 1)
	assert.Equal(t, "Seed", acme.FundingRounds[0].Round)
	assert.Equal(t, []string{"A. Smith"}, acme.Founders)
	assert.Equal(t, []string{"brand"}, acme.SWOT.Strengths)
	assert.Equal(t, []string{"weather"}, acme.SWOT.Threats)
	require.NotNil(t, acme.Confidence)
	assert.Equal(t, 0.85, *acme.Confidence)

	bare := companies[1]
	assert.Equal(t, "Bare Startup", bare.Name)
	assert.Equal(t, "2-10", bare.TeamSize)
	require.NotNil(t, bare.Confidence)
	assert.Equal(t, 0.3, *bare.Confidence)
}

func TestExtractCompanies_NonJSON(t *testing.T) {
	assert.Nil(t, ExtractCompanies([]byte("# markdown")))
	assert.Nil(t, ExtractCompanies([]byte(`{"no_companies": true}`)))
}
