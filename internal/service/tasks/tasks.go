// Package tasks is the derived checklist view over document content trees.
// Nothing here is persisted on its own: extraction recomputes the list from
// the current tree on every read, and a toggle rewrites the owning
// document's tree with one completion attribute flipped.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/doctree"
	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// ToggleRef identifies the task to flip. NodeID is preferred: it survives
// structural edits between extraction and toggle. Ordinal is the fallback
// for content that predates stable ids and is only valid against the tree
// revision it was extracted from.
type ToggleRef struct {
	NodeID  string `json:"node_id,omitempty"`
	Ordinal int    `json:"ordinal"`
}

// Service extracts and toggles tasks.
type Service struct {
	docs   repositories.DocumentRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new task service
func NewService(docs repositories.DocumentRepository, logger *slog.Logger) *Service {
	return &Service{docs: docs, logger: logger, now: time.Now}
}

// Extract walks the tree depth-first and returns one Task per task node
// with a non-empty title. Empty-titled task nodes are skipped as
// not-yet-valid, but their children are still visited. Ordinals count every
// task node encountered, included or not, so a later toggle re-walks to the
// same node.
func Extract(tree *doctree.Node, docID uuid.UUID, docTitle string) []models.Task {
	tasks := []models.Task{}
	ordinal := 0

	tree.Walk(func(n *doctree.Node) bool {
		if n.Type != doctree.TypeTask {
			return true
		}

		task := models.Task{
			Ordinal:       ordinal,
			DocumentID:    docID,
			DocumentTitle: docTitle,
		}
		ordinal++

		if n.Attrs != nil {
			task.NodeID = n.Attrs.NodeID
			task.Completed = n.Attrs.Checked
		}

		for _, child := range n.Content {
			switch child.Type {
			case doctree.TypeTaskTitle:
				task.Title = child.InlineText()
			case doctree.TypeTaskDesc:
				task.Description = child.InlineText()
			}
		}

		if task.Title != "" {
			tasks = append(tasks, task)
		}
		return true
	})

	return tasks
}

// ListForUser extracts tasks across all of a user's live documents.
// Documents with malformed content contribute nothing; they are logged and
// skipped, never fatal.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Task, error) {
	docs, err := s.docs.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents for tasks: %w", err)
	}

	tasks := []models.Task{}
	for i := range docs {
		doc := &docs[i]
		if len(doc.Content) == 0 {
			continue
		}
		tree, err := doctree.Parse(doc.Content)
		if err != nil {
			s.logger.Warn("skipping document with malformed content", "document_id", doc.ID, "error", err)
			continue
		}
		tasks = append(tasks, Extract(tree, doc.ID, doc.Title)...)
	}

	return tasks, nil
}

// Toggle flips the completion attribute of one task node and writes the
// whole tree back, bumping updatedAt. Fails with ErrNotFound when the
// referenced node no longer exists and ErrMalformedContent when the tree
// cannot be parsed.
func (s *Service) Toggle(ctx context.Context, userID string, docID uuid.UUID, ref ToggleRef) (*models.Task, error) {
	doc, err := s.docs.GetByID(ctx, docID, userID)
	if err != nil {
		return nil, err
	}

	tree, err := doctree.Parse(doc.Content)
	if err != nil {
		return nil, err
	}

	target, targetOrdinal := findTarget(tree, ref)
	if target == nil {
		return nil, fmt.Errorf("task %q (ordinal %d) no longer exists: %w", ref.NodeID, ref.Ordinal, domain.ErrNotFound)
	}

	if target.Attrs == nil {
		target.Attrs = &doctree.Attrs{}
	}
	target.Attrs.Checked = !target.Attrs.Checked

	content, err := tree.Marshal()
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.docs.UpdateContent(ctx, docID, content, tree.PlainText(), tree.WordCount(), now); err != nil {
		return nil, err
	}

	// Re-extract so the caller sees the task exactly as the next read will.
	// Ordinals are unique per tree, so the flipped node's ordinal pins the
	// match even among identical-looking tasks.
	for _, task := range Extract(tree, doc.ID, doc.Title) {
		if task.Ordinal == targetOrdinal {
			return &task, nil
		}
	}

	// Flipped node has an empty title; report the bare state.
	return &models.Task{
		Ordinal:    targetOrdinal,
		NodeID:     target.Attrs.NodeID,
		Completed:  target.Attrs.Checked,
		DocumentID: doc.ID,
	}, nil
}

// findTarget resolves a toggle reference in the same deterministic walk
// order Extract uses: stable id first, ordinal fallback. Returns the node
// and its ordinal among task nodes, or (nil, -1).
func findTarget(tree *doctree.Node, ref ToggleRef) (*doctree.Node, int) {
	var (
		target        *doctree.Node
		targetOrdinal = -1
	)
	ordinal := 0
	tree.Walk(func(n *doctree.Node) bool {
		if n.Type != doctree.TypeTask {
			return true
		}
		match := ordinal == ref.Ordinal
		if ref.NodeID != "" {
			match = n.Attrs != nil && n.Attrs.NodeID == ref.NodeID
		}
		if match {
			target = n
			targetOrdinal = ordinal
			return false
		}
		ordinal++
		return true
	})
	return target, targetOrdinal
}
