package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is the synchronized document entity. Content holds the serialized
// structured tree; PlainText and WordCount are derived from it on every
// accepted write. Version is the server-side monotonic counter that gates
// pushes - clients never assign it, they echo the last value the server
// confirmed to them.
type Document struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"user_id,omitempty"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content,omitempty"`
	PlainText   string          `json:"plain_text,omitempty"`
	WordCount   int             `json:"word_count"`
	WorkspaceID *uuid.UUID      `json:"workspace_id"`
	Tags        []string        `json:"tags"`
	Favorite    bool            `json:"favorite"`
	Pinned      bool            `json:"pinned"`
	Deleted     bool            `json:"deleted"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// Device-local sync state. Never sent on the wire; persisted only by the
	// local entity store.
	IsDirty       bool       `json:"-"`
	ServerVersion int64      `json:"-"`
	LastSyncedAt  *time.Time `json:"-"`
}

// HasTag reports whether the document carries the given tag.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present. The tag set is unordered and
// unique.
func (d *Document) AddTag(tag string) {
	if !d.HasTag(tag) {
		d.Tags = append(d.Tags, tag)
	}
}
