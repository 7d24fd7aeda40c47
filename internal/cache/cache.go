// Package cache is the on-device persistence layer: a SQLite database
// holding review records and the last merged project list. It is a pure
// cache — always safe to overwrite, never the source of truth when the
// backend is reachable.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joescharf/rd/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Cache wraps the local SQLite database (modernc.org/sqlite, pure Go).
type Cache struct {
	db *sql.DB
}

// New opens (or creates) the cache database at the given path.
func New(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access through Go's connection pool and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Cache{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := c.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := c.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// --- Reviews ---

// PutReviews replaces the cached record map for one scope.
func (c *Cache) PutReviews(ctx context.Context, scope string, records map[string]models.ReviewRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reviews WHERE scope = ?", scope); err != nil {
		return fmt.Errorf("clear scope %s: %w", scope, err)
	}

	now := time.Now().UTC()
	for entity, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", entity, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO reviews (scope, entity, record, updated_at) VALUES (?, ?, ?, ?)",
			scope, entity, string(data), now)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", entity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review write: %w", err)
	}
	return nil
}

// GetReviews loads the cached record map for one scope. A scope with no
// rows yields an empty (non-nil) map.
func (c *Cache) GetReviews(ctx context.Context, scope string) (map[string]models.ReviewRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT entity, record FROM reviews WHERE scope = ?", scope)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	records := map[string]models.ReviewRecord{}
	for rows.Next() {
		var entity, data string
		if err := rows.Scan(&entity, &data); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		var rec models.ReviewRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record %s: %w", entity, err)
		}
		records[entity] = rec
	}
	return records, rows.Err()
}

// ClearReviews removes all cached records for one scope.
func (c *Cache) ClearReviews(ctx context.Context, scope string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM reviews WHERE scope = ?", scope)
	if err != nil {
		return fmt.Errorf("clear reviews: %w", err)
	}
	return nil
}

// --- Projects ---

// PutProjects replaces the cached merged project list.
func (c *Cache) PutProjects(ctx context.Context, projects []models.ProjectRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin project write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("clear projects: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range projects {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal project %s: %w", p.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO projects (id, record, updated_at) VALUES (?, ?, ?)",
			p.ID, string(data), now)
		if err != nil {
			return fmt.Errorf("insert project %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit project write: %w", err)
	}
	return nil
}

// GetProjects loads the cached project list sorted by CreatedAt descending,
// matching merge output order.
func (c *Cache) GetProjects(ctx context.Context) ([]models.ProjectRecord, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT record FROM projects")
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.ProjectRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		var p models.ProjectRecord
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshal project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.After(projects[j].CreatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
	return projects, nil
}
