package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"driftnote/internal/domain/repositories"
)

// RepositoryConfig holds the shared dependencies of every repository.
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds the table names repositories compose queries against.
type TableNames struct {
	Documents     string
	Workspaces    string
	Settings      string
	RoomSnapshots string
}

// NewTableNames returns the table names the migrations create.
func NewTableNames() *TableNames {
	return &TableNames{
		Documents:     "documents",
		Workspaces:    "workspaces",
		Settings:      "settings",
		RoomSnapshots: "room_snapshots",
	}
}

// CreateConnectionPool creates a pgx connection pool and verifies it with a
// ping before returning.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction stored in the context when one exists,
// otherwise the pool. Repositories participate in transactions transparently
// through this.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
