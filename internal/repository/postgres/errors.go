package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// The two postgres error classes the repositories map to domain errors.
// Anything else surfaces as a wrapped storage failure.

// IsPgDuplicateError reports a unique constraint violation (SQLSTATE 23505).
func IsPgDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsPgNoRowsError reports an empty single-row result.
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
