package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *RepositoryConfig) repositories.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const documentColumns = `id, user_id, title, content, plain_text, word_count, workspace_id,
	tags, favorite, pinned, is_deleted, deleted_at, version, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Title,
		&doc.Content,
		&doc.PlainText,
		&doc.WordCount,
		&doc.WorkspaceID,
		&doc.Tags,
		&doc.Favorite,
		&doc.Pinned,
		&doc.Deleted,
		&doc.DeletedAt,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByID retrieves a document by id, soft-deleted rows included. The push
// path needs to see deleted rows so a resurrecting push still goes through
// the version gate.
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id, userID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return doc, nil
}

// GetForUpdate locks the row until the surrounding transaction ends. Two
// concurrent pushes for the same id serialize here, so they cannot both read
// version N and both succeed.
func (r *PostgresDocumentRepository) GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id, userID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document for update: %w", err)
	}

	return doc, nil
}

// Insert creates a new document row with the caller-assigned version.
func (r *PostgresDocumentRepository) Insert(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, r.tables.Documents, documentColumns)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		doc.ID,
		doc.UserID,
		doc.Title,
		doc.Content,
		doc.PlainText,
		doc.WordCount,
		doc.WorkspaceID,
		doc.Tags,
		doc.Favorite,
		doc.Pinned,
		doc.Deleted,
		doc.DeletedAt,
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("document %s: %w", doc.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	return nil
}

// Update overwrites all mutable fields of an existing row.
func (r *PostgresDocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, content = $2, plain_text = $3, word_count = $4,
		    workspace_id = $5, tags = $6, favorite = $7, pinned = $8,
		    is_deleted = $9, deleted_at = $10, version = $11, updated_at = $12
		WHERE id = $13 AND user_id = $14
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		doc.Title,
		doc.Content,
		doc.PlainText,
		doc.WordCount,
		doc.WorkspaceID,
		doc.Tags,
		doc.Favorite,
		doc.Pinned,
		doc.Deleted,
		doc.DeletedAt,
		doc.Version,
		doc.UpdatedAt,
		doc.ID,
		doc.UserID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}

	return nil
}

// ListChangedSince returns documents modified strictly after the watermark.
func (r *PostgresDocumentRepository) ListChangedSince(ctx context.Context, userID string, since time.Time, includeDeleted bool) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1 AND updated_at > $2
	`, documentColumns, r.tables.Documents)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY updated_at ASC`

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list changed documents: %w", err)
	}
	defer rows.Close()

	documents := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return documents, nil
}

// ListDeletedIDsSince returns ids soft-deleted after the watermark.
func (r *PostgresDocumentRepository) ListDeletedIDsSince(ctx context.Context, userID string, since time.Time) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`
		SELECT id
		FROM %s
		WHERE user_id = $1 AND is_deleted = TRUE AND deleted_at > $2
		ORDER BY deleted_at ASC
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list deleted document ids: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document ids: %w", err)
	}

	return ids, nil
}

// ListActive returns all live documents for a user, newest first.
func (r *PostgresDocumentRepository) ListActive(ctx context.Context, userID string) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY updated_at DESC
	`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list active documents: %w", err)
	}
	defer rows.Close()

	documents := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return documents, nil
}

// UpdateContent rewrites content and derived fields, leaving version alone.
// The collaboration room and task toggles write through here; their edits
// become visible to REST pulls via updated_at without competing in the
// version gate.
func (r *PostgresDocumentRepository) UpdateContent(ctx context.Context, id uuid.UUID, content json.RawMessage, plainText string, wordCount int, updatedAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, plain_text = $2, word_count = $3, updated_at = $4
		WHERE id = $5
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, content, plainText, wordCount, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// DetachWorkspace clears the workspace reference on every document in it.
func (r *PostgresDocumentRepository) DetachWorkspace(ctx context.Context, userID string, workspaceID uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET workspace_id = NULL, updated_at = NOW()
		WHERE user_id = $1 AND workspace_id = $2
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, userID, workspaceID); err != nil {
		return fmt.Errorf("detach documents from workspace: %w", err)
	}

	return nil
}

// Purge removes the row unconditionally.
func (r *PostgresDocumentRepository) Purge(ctx context.Context, id uuid.UUID, userID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("purge document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
