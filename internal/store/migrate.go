package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// EnsureSchema creates the session_snapshots table if it does not already
// exist. Narrower than the teacher's fs-based migrate.Migrator
// (internal/infrastructure/storage/migrate.go) since the store owns a
// single table with no schema history to track.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*SessionSnapshotModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}
