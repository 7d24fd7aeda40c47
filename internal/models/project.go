package models

import "time"

// ProjectSource identifies where a project record was ingested from.
type ProjectSource string

const (
	// SourceRemote means the record came from the backend project store.
	SourceRemote ProjectSource = "remote"
	// SourceLegacy means the record was synthesized from a historical
	// report artifact that predates the project store.
	SourceLegacy ProjectSource = "legacy"
	// SourceLocal means the record was created on this device and has
	// not (yet) been acknowledged by the backend.
	SourceLocal ProjectSource = "local"
)

// ProjectRecord represents one research project in the merged dashboard list.
// ID is either a backend-assigned opaque token or a synthetic token derived
// deterministically from ReportPath.
type ProjectRecord struct {
	ID            string        `json:"id"`
	ClientName    string        `json:"client_name"`
	ProjectName   string        `json:"project_name"`
	Brief         string        `json:"brief"`
	Framework     string        `json:"framework"`
	Status        string        `json:"status"`
	StatsSnapshot *ReviewStats  `json:"stats_snapshot,omitempty"`
	ReportPath    string        `json:"report_path,omitempty"`
	CompanyCount  int           `json:"company_count"`
	Source        ProjectSource `json:"source"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Archived      bool          `json:"archived"`
	ArchivedAt    *time.Time    `json:"archived_at,omitempty"`
}

// ReportMeta describes a report artifact known to the backend.
type ReportMeta struct {
	Path           string    `json:"path"`
	Timestamp      time.Time `json:"timestamp"`
	TotalCompanies int       `json:"total_companies"`
	ReportType     string    `json:"report_type"`
}
