package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// PostgresSettingsRepository implements the SettingsRepository interface
type PostgresSettingsRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(config *RepositoryConfig) repositories.SettingsRepository {
	return &PostgresSettingsRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetByUser retrieves the settings blob for a user, nil when none exists.
func (r *PostgresSettingsRepository) GetByUser(ctx context.Context, userID string) (*models.Settings, error) {
	query := fmt.Sprintf(`
		SELECT user_id, data, version, updated_at
		FROM %s
		WHERE user_id = $1
	`, r.tables.Settings)

	var settings models.Settings
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID).Scan(
		&settings.UserID,
		&settings.Data,
		&settings.Version,
		&settings.UpdatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	return &settings, nil
}

// Upsert writes the whole blob, incrementing the stored version counter.
func (r *PostgresSettingsRepository) Upsert(ctx context.Context, settings *models.Settings) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, data, version, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			data = EXCLUDED.data,
			version = %s.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version
	`, r.tables.Settings, r.tables.Settings)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		settings.UserID,
		settings.Data,
		settings.UpdatedAt,
	).Scan(&settings.Version)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}

	return nil
}
