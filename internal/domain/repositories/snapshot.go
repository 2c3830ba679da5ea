package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain/models"
)

// RoomSnapshot is the durable state of a collaboration room: the merged
// content tree, the metadata map, and the room's logical clock at flush
// time. Seq is independent of the REST version counter.
type RoomSnapshot struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Tree       json.RawMessage `json:"tree"`
	Meta       models.JSONMap  `json:"meta"`
	Seq        uint64          `json:"seq"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SnapshotRepository persists room snapshots, one row per document.
type SnapshotRepository interface {
	// Get returns nil (no error) when no snapshot exists.
	Get(ctx context.Context, documentID uuid.UUID) (*RoomSnapshot, error)

	Save(ctx context.Context, snapshot *RoomSnapshot) error

	Delete(ctx context.Context, documentID uuid.UUID) error
}
