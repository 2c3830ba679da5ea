package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace groups documents into a user-defined tree. ParentID is nil for
// roots; a workspace may never be its own ancestor. Deletion re-parents
// children and detaches documents - it never cascades.
type Workspace struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	Name      string     `json:"name"`
	Icon      string     `json:"icon"`
	Color     string     `json:"color"`
	SortOrder int        `json:"sort_order"`
	ParentID  *uuid.UUID `json:"parent_id"`
	Expanded  bool       `json:"expanded"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Device-local sync state, see Document.
	IsDirty       bool       `json:"-"`
	ServerVersion int64      `json:"-"`
	LastSyncedAt  *time.Time `json:"-"`
}
