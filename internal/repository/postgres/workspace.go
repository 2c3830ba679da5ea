package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// PostgresWorkspaceRepository implements the WorkspaceRepository interface
type PostgresWorkspaceRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(config *RepositoryConfig) repositories.WorkspaceRepository {
	return &PostgresWorkspaceRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const workspaceColumns = `id, user_id, name, icon, color, sort_order, parent_id, expanded,
	version, created_at, updated_at`

func scanWorkspace(row interface{ Scan(...interface{}) error }) (*models.Workspace, error) {
	var ws models.Workspace
	err := row.Scan(
		&ws.ID,
		&ws.UserID,
		&ws.Name,
		&ws.Icon,
		&ws.Color,
		&ws.SortOrder,
		&ws.ParentID,
		&ws.Expanded,
		&ws.Version,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetByID retrieves a workspace by id.
func (r *PostgresWorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, workspaceColumns, r.tables.Workspaces)

	executor := GetExecutor(ctx, r.pool)
	ws, err := scanWorkspace(executor.QueryRow(ctx, query, id, userID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	return ws, nil
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresWorkspaceRepository) GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, workspaceColumns, r.tables.Workspaces)

	executor := GetExecutor(ctx, r.pool)
	ws, err := scanWorkspace(executor.QueryRow(ctx, query, id, userID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get workspace for update: %w", err)
	}

	return ws, nil
}

// Insert creates a new workspace row.
func (r *PostgresWorkspaceRepository) Insert(ctx context.Context, ws *models.Workspace) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.tables.Workspaces, workspaceColumns)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		ws.ID,
		ws.UserID,
		ws.Name,
		ws.Icon,
		ws.Color,
		ws.SortOrder,
		ws.ParentID,
		ws.Expanded,
		ws.Version,
		ws.CreatedAt,
		ws.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert workspace: %w", err)
	}

	return nil
}

// Update overwrites all mutable fields of an existing row.
func (r *PostgresWorkspaceRepository) Update(ctx context.Context, ws *models.Workspace) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $1, icon = $2, color = $3, sort_order = $4, parent_id = $5,
		    expanded = $6, version = $7, updated_at = $8
		WHERE id = $9 AND user_id = $10
	`, r.tables.Workspaces)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		ws.Name,
		ws.Icon,
		ws.Color,
		ws.SortOrder,
		ws.ParentID,
		ws.Expanded,
		ws.Version,
		ws.UpdatedAt,
		ws.ID,
		ws.UserID,
	)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrNotFound)
	}

	return nil
}

// ListChangedSince returns workspaces modified strictly after the watermark.
func (r *PostgresWorkspaceRepository) ListChangedSince(ctx context.Context, userID string, since time.Time) ([]models.Workspace, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1 AND updated_at > $2
		ORDER BY updated_at ASC
	`, workspaceColumns, r.tables.Workspaces)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list changed workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := []models.Workspace{}
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, *ws)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}

	return workspaces, nil
}

// IsAncestor walks up from node with a recursive CTE and reports whether
// candidate appears among its ancestors. Used to refuse cyclic re-parents.
func (r *PostgresWorkspaceRepository) IsAncestor(ctx context.Context, userID string, candidate, node uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE ancestors AS (
			SELECT id, parent_id
			FROM %s
			WHERE id = $1 AND user_id = $2
			UNION ALL
			SELECT w.id, w.parent_id
			FROM %s w
			JOIN ancestors a ON w.id = a.parent_id
		)
		SELECT EXISTS (SELECT 1 FROM ancestors WHERE id = $3)
	`, r.tables.Workspaces, r.tables.Workspaces)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, node, userID, candidate).Scan(&exists); err != nil {
		return false, fmt.Errorf("check workspace ancestry: %w", err)
	}

	return exists, nil
}

// ReparentChildren moves every direct child of oldParent to newParent.
func (r *PostgresWorkspaceRepository) ReparentChildren(ctx context.Context, userID string, oldParent uuid.UUID, newParent *uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET parent_id = $1, updated_at = NOW()
		WHERE user_id = $2 AND parent_id = $3
	`, r.tables.Workspaces)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, newParent, userID, oldParent); err != nil {
		return fmt.Errorf("reparent workspace children: %w", err)
	}

	return nil
}

// Delete removes the workspace row.
func (r *PostgresWorkspaceRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Workspaces)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
