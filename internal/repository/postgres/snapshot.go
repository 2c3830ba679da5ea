package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"driftnote/internal/domain/repositories"
)

// PostgresSnapshotRepository implements the SnapshotRepository interface.
// One compacted snapshot row per document; the collaboration room overwrites
// it on every flush.
type PostgresSnapshotRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(config *RepositoryConfig) repositories.SnapshotRepository {
	return &PostgresSnapshotRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Get retrieves the snapshot for a document, nil when none exists.
func (r *PostgresSnapshotRepository) Get(ctx context.Context, documentID uuid.UUID) (*repositories.RoomSnapshot, error) {
	query := fmt.Sprintf(`
		SELECT document_id, tree, meta, seq, updated_at
		FROM %s
		WHERE document_id = $1
	`, r.tables.RoomSnapshots)

	var snap repositories.RoomSnapshot
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, documentID).Scan(
		&snap.DocumentID,
		&snap.Tree,
		&snap.Meta,
		&snap.Seq,
		&snap.UpdatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room snapshot: %w", err)
	}

	return &snap, nil
}

// Save overwrites the snapshot row for the document.
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *repositories.RoomSnapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, tree, meta, seq, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO UPDATE SET
			tree = EXCLUDED.tree,
			meta = EXCLUDED.meta,
			seq = EXCLUDED.seq,
			updated_at = EXCLUDED.updated_at
	`, r.tables.RoomSnapshots)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		snapshot.DocumentID,
		snapshot.Tree,
		snapshot.Meta,
		snapshot.Seq,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save room snapshot: %w", err)
	}

	return nil
}

// Delete removes the snapshot row, tolerating absence.
func (r *PostgresSnapshotRepository) Delete(ctx context.Context, documentID uuid.UUID) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE document_id = $1
	`, r.tables.RoomSnapshots)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, documentID); err != nil {
		return fmt.Errorf("delete room snapshot: %w", err)
	}

	return nil
}
