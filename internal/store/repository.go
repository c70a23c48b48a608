package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/ladderflow/engine/internal/models"
)

// Repository implements session.Store using Bun ORM over Postgres.
type Repository struct {
	db *bun.DB
}

// NewRepository wraps db as a Repository.
func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Get fetches the raw snapshot payload for sessionID. Returns
// models.ErrSessionNotFound if no row exists.
func (r *Repository) Get(ctx context.Context, sessionID string) ([]byte, error) {
	row := new(SessionSnapshotModel)
	err := r.db.NewSelect().
		Model(row).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %q: %w", sessionID, err)
	}
	return row.Payload, nil
}

// Put upserts the snapshot payload for sessionID.
func (r *Repository) Put(ctx context.Context, sessionID string, data []byte) error {
	row := &SessionSnapshotModel{
		SessionID: sessionID,
		Payload:   data,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: put session %q: %w", sessionID, err)
	}
	return nil
}

// Delete removes sessionID's row, if present.
func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.NewDelete().
		Model((*SessionSnapshotModel)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: delete session %q: %w", sessionID, err)
	}
	return nil
}
