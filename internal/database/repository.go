package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clipwave/clipwave/internal/persist"
	"github.com/jackc/pgx/v5"
)

// Repository stores named snapshot blobs in the persisted_state table
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Load returns the blob saved under name, or persist.ErrNotFound
func (r *Repository) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte

	query := `SELECT blob FROM persisted_state WHERE name = $1`

	err := r.db.Pool.QueryRow(ctx, query, name).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, persist.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load state %s: %w", name, err)
	}

	return blob, nil
}

// Save upserts the blob under name. The blob must be a JSON document.
func (r *Repository) Save(ctx context.Context, name string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("state %s is not valid JSON", name)
	}

	query := `
		INSERT INTO persisted_state (name, blob, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, name, data); err != nil {
		return fmt.Errorf("failed to save state %s: %w", name, err)
	}

	return nil
}

// Delete removes the blob saved under name
func (r *Repository) Delete(ctx context.Context, name string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM persisted_state WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", name, err)
	}
	return nil
}
