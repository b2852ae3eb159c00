// Package cache persists the most recent project state to the local SQLite
// database so the editor can read it while offline. Writes are best-effort;
// the save pipeline never fails on a cache error.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cutline/cutline-agent/internal/timeline"
)

// Record is one cached project row.
type Record struct {
	ProjectID string             `json:"project_id"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Timeline  *timeline.Snapshot `json:"timeline,omitempty"`
	Project   map[string]any     `json:"project,omitempty"`
	CachedAt  time.Time          `json:"cached_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) StoreProjectCache(ctx context.Context, projectID string, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO project_cache (project_id, version, updated_at, payload, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at,
			payload = excluded.payload,
			cached_at = excluded.cached_at
	`, projectID, rec.Version, rec.UpdatedAt.Format(time.RFC3339), string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetProjectCache(ctx context.Context, projectID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM project_cache WHERE project_id = ?
	`, projectID)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) DeleteProjectCache(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM project_cache WHERE project_id = ?", projectID)
	return err
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
