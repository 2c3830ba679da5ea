package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain/models"
)

// DocumentRepository is the server-side document row store. Get/Insert/
// Update participate in context transactions (see dbtx.go); the push path
// wraps GetForUpdate + Insert/Update in one transaction per entity so the
// compare-and-increment on version is serialized per row.
type DocumentRepository interface {
	// GetByID returns the document regardless of its soft-delete flag.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error)

	// GetForUpdate locks the row for the duration of the surrounding
	// transaction. Returns ErrNotFound when no row exists.
	GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error)

	Insert(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error

	// ListChangedSince returns documents with updated_at strictly after
	// since, optionally excluding soft-deleted rows.
	ListChangedSince(ctx context.Context, userID string, since time.Time, includeDeleted bool) ([]models.Document, error)

	// ListDeletedIDsSince returns ids of documents soft-deleted after since.
	ListDeletedIDsSince(ctx context.Context, userID string, since time.Time) ([]uuid.UUID, error)

	// ListActive returns all live documents for a user, content included.
	ListActive(ctx context.Context, userID string) ([]models.Document, error)

	// UpdateContent rewrites content and its derived fields without touching
	// the version counter. Used by the collaboration room flush and by task
	// toggles; REST pulls observe the new updated_at.
	UpdateContent(ctx context.Context, id uuid.UUID, content json.RawMessage, plainText string, wordCount int, updatedAt time.Time) error

	// DetachWorkspace clears the workspace reference on every document
	// pointing at it.
	DetachWorkspace(ctx context.Context, userID string, workspaceID uuid.UUID) error

	// Purge removes the row unconditionally (explicit permanent delete).
	Purge(ctx context.Context, id uuid.UUID, userID string) error
}
