// Package remote is the HTTP client for the research backend. The backend
// exposes simple get/put endpoints for review maps, project records, and
// raw report documents; anything fancier (auth, pagination) lives behind
// the base URL and is not this client's problem.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joescharf/rd/internal/models"
)

// Client talks to the research backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type reviewsResponse struct {
	Found   bool                           `json:"found"`
	Reviews map[string]models.ReviewRecord `json:"reviews"`
}

// GetReviews fetches the review map for one scope. found is false when the
// backend has never stored reviews for the scope.
func (c *Client) GetReviews(ctx context.Context, scope string) (bool, map[string]models.ReviewRecord, error) {
	var resp reviewsResponse
	if err := c.getJSON(ctx, "/scope/"+url.PathEscape(scope)+"/reviews", &resp); err != nil {
		return false, nil, err
	}
	if !resp.Found {
		return false, nil, nil
	}
	if resp.Reviews == nil {
		resp.Reviews = map[string]models.ReviewRecord{}
	}
	return true, resp.Reviews, nil
}

// PutReviews stores the full review map for one scope. The payload is the
// complete map, so repeating a superseded write is harmless.
func (c *Client) PutReviews(ctx context.Context, scope string, records map[string]models.ReviewRecord) error {
	body, err := json.Marshal(map[string]any{"reviews": records})
	if err != nil {
		return fmt.Errorf("marshal reviews: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/scope/"+url.PathEscape(scope)+"/reviews", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put reviews: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("put reviews: backend returned %s", resp.Status)
	}
	return nil
}

type projectsResponse struct {
	Projects map[string]models.ProjectRecord `json:"projects"`
}

// ListProjects fetches the authoritative project records. The backend keys
// them by id; the returned slice carries the id inside each record.
func (c *Client) ListProjects(ctx context.Context) ([]models.ProjectRecord, error) {
	var resp projectsResponse
	if err := c.getJSON(ctx, "/projects", &resp); err != nil {
		return nil, err
	}

	projects := make([]models.ProjectRecord, 0, len(resp.Projects))
	for id, p := range resp.Projects {
		if p.ID == "" {
			p.ID = id
		}
		p.Source = models.SourceRemote
		projects = append(projects, p)
	}
	return projects, nil
}

type reportsResponse struct {
	Reports []models.ReportMeta `json:"reports"`
}

// ListReports fetches metadata for the historical report artifacts.
func (c *Client) ListReports(ctx context.Context) ([]models.ReportMeta, error) {
	var resp reportsResponse
	if err := c.getJSON(ctx, "/reports", &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// GetReportRaw fetches one raw report artifact by path.
func (c *Client) GetReportRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/reports/"+url.PathEscape(path)+"/raw", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch report %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch report %s: backend returned %s", path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("get %s: backend returned %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
