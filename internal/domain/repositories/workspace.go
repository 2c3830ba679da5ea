package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain/models"
)

// WorkspaceRepository is the server-side workspace row store.
type WorkspaceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error)

	// GetForUpdate locks the row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error)

	Insert(ctx context.Context, ws *models.Workspace) error
	Update(ctx context.Context, ws *models.Workspace) error

	ListChangedSince(ctx context.Context, userID string, since time.Time) ([]models.Workspace, error)

	// IsAncestor reports whether candidate is an ancestor of node. Used to
	// forbid cycles when a workspace is re-parented.
	IsAncestor(ctx context.Context, userID string, candidate, node uuid.UUID) (bool, error)

	// ReparentChildren moves every child of oldParent to newParent (nil
	// makes them roots).
	ReparentChildren(ctx context.Context, userID string, oldParent uuid.UUID, newParent *uuid.UUID) error

	// Delete removes the row. Callers must re-parent children and detach
	// documents first, inside the same transaction.
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// SettingsRepository stores one settings blob per user.
type SettingsRepository interface {
	// GetByUser returns nil (no error) when the user has no settings yet.
	GetByUser(ctx context.Context, userID string) (*models.Settings, error)

	// Upsert writes the blob, bumping the stored version counter.
	Upsert(ctx context.Context, settings *models.Settings) error
}
