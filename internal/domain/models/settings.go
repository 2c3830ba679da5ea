package models

import "time"

// JSONMap is the type used for JSONB columns.
type JSONMap map[string]interface{}

// Settings is the single opaque preference blob per user. There is no
// per-field versioning: resolution in every direction is whole-object
// last-write-wins on UpdatedAt.
type Settings struct {
	UserID    string    `json:"user_id,omitempty"`
	Data      JSONMap   `json:"data"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewerThan reports whether s should win an LWW merge against other.
// A nil opponent always loses.
func (s *Settings) NewerThan(other *Settings) bool {
	if other == nil {
		return true
	}
	return s.UpdatedAt.After(other.UpdatedAt)
}
