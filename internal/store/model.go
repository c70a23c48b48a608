// Package store persists session snapshots via Bun ORM over Postgres,
// grounded on the teacher's storage layer
// (internal/infrastructure/storage/execution_repository.go and
// models/execution_model.go) but narrowed to a single key-value table
// since the Engine needs no queries beyond primary key (spec §6).
package store

import (
	"time"

	"github.com/uptrace/bun"
)

// SessionSnapshotModel is the Bun row model for a persisted session
// snapshot: the session-id is the primary key, the payload is stored as
// raw JSON (spec §6's snapshot format is opaque to the store).
type SessionSnapshotModel struct {
	bun.BaseModel `bun:"table:session_snapshots,alias:ss"`

	SessionID string    `bun:"session_id,pk"`
	Payload   []byte    `bun:"payload,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
