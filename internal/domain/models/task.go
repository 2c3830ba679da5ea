package models

import "github.com/google/uuid"

// Task is a derived view over task nodes in a document's content tree. It is
// never persisted on its own: every read recomputes the list from the
// current tree, and a toggle writes the whole tree back.
//
// Ordinal is the task's position among task nodes in depth-first traversal
// order. It is only valid against the tree revision it was extracted from;
// NodeID is the stable identifier assigned at node creation and is the
// preferred toggle key.
type Task struct {
	Ordinal       int       `json:"ordinal"`
	NodeID        string    `json:"node_id,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Completed     bool      `json:"completed"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
}
