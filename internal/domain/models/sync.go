package models

import (
	"time"

	"github.com/google/uuid"
)

// PushOutcome is the per-entity result of a push.
type PushOutcome string

const (
	PushCreated  PushOutcome = "created"
	PushUpdated  PushOutcome = "updated"
	PushConflict PushOutcome = "conflict"

	// PushError reports a storage or validation failure for one entity.
	// Siblings in the same batch are unaffected; the client keeps the
	// entity dirty and retries on the next cycle.
	PushError PushOutcome = "error"
)

// PullResponse carries everything a device needs to catch up from a
// watermark. ServerTime is the clock clients must store as their next
// watermark - never their own clock, which may drift.
type PullResponse struct {
	Documents          []Document  `json:"documents"`
	Workspaces         []Workspace `json:"workspaces"`
	Settings           *Settings   `json:"settings,omitempty"`
	DeletedDocumentIDs []uuid.UUID `json:"deleted_document_ids"`
	ServerTime         int64       `json:"server_time"` // unix ms
}

// PushRequest carries a batch of locally dirty entities. Each entry is
// processed independently; one conflict never aborts its siblings.
type PushRequest struct {
	Documents  []Document  `json:"documents,omitempty"`
	Workspaces []Workspace `json:"workspaces,omitempty"`
	Settings   *Settings   `json:"settings,omitempty"`
}

// PushResult reports the outcome for one entity in a push batch. For
// conflicts ServerVersion is the authoritative version the caller must
// reconcile against; for created/updated it is the newly assigned version.
type PushResult struct {
	ID            uuid.UUID   `json:"id"`
	Kind          string      `json:"kind"` // "document" or "workspace"
	Outcome       PushOutcome `json:"outcome"`
	ServerVersion int64       `json:"server_version"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Message       string      `json:"message,omitempty"`
}

// PushResponse is the full push reply. SettingsApplied is false when the
// server kept its own newer settings blob (LWW).
type PushResponse struct {
	Results         []PushResult `json:"results"`
	SettingsApplied bool         `json:"settings_applied"`
	Settings        *Settings    `json:"settings,omitempty"`
	ServerTime      int64        `json:"server_time"` // unix ms
}
