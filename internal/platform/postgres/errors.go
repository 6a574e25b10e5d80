package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/cronq/internal/store"
)

// PostgreSQL error codes
const (
	// uniqueViolationCode is the PostgreSQL error code for unique constraint violations
	uniqueViolationCode = "23505"

	// checkViolationCode is the PostgreSQL error code for check constraint violations
	checkViolationCode = "23514"

	// notNullViolationCode is the PostgreSQL error code for not null violations
	notNullViolationCode = "23502"

	// invalidTextRepresentationCode is raised for malformed values such as bad uuids
	invalidTextRepresentationCode = "22P02"

	// adminShutdownCode is sent when the server terminates the backend
	adminShutdownCode = "57P01"
)

// MapError maps a database error to the matching store error. Both the store
// error and the original error stay reachable through errors.Is/errors.As.
// Errors without a specific mapping are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	// Already classified by the pool or session layer
	if errors.Is(err, store.ErrPoolExhausted) ||
		errors.Is(err, store.ErrConnectionFault) ||
		errors.Is(err, store.ErrPoolClosed) ||
		errors.Is(err, store.ErrTransactionFailed) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", store.ErrConnectionFault, err)
	}

	switch {
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	case IsCheckConstraintViolation(err):
		return fmt.Errorf("%w: check constraint violation (%s): %w",
			store.ErrInvalidEntity, pgErrorOf(err).ConstraintName, err)
	case IsNotNullViolation(err):
		return fmt.Errorf("%w: not null violation (%s): %w",
			store.ErrInvalidEntity, pgErrorOf(err).ColumnName, err)
	}

	if pgErr := pgErrorOf(err); pgErr != nil {
		switch pgErr.Code {
		case invalidTextRepresentationCode:
			return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
		case adminShutdownCode:
			return fmt.Errorf("%w: %w", store.ErrConnectionFault, err)
		}
	}

	// Return the original error for errors that don't have specific mappings
	return err
}

func pgErrorOf(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	pgErr := pgErrorOf(err)
	return pgErr != nil && pgErr.Code == uniqueViolationCode
}

// IsCheckConstraintViolation checks if the given error is a PostgreSQL check constraint violation.
// The cron_task table rejects unknown statuses and updated_on < created_on this way.
func IsCheckConstraintViolation(err error) bool {
	pgErr := pgErrorOf(err)
	return pgErr != nil && pgErr.Code == checkViolationCode
}

// IsNotNullViolation checks if the given error is a PostgreSQL not null constraint violation.
func IsNotNullViolation(err error) bool {
	pgErr := pgErrorOf(err)
	return pgErr != nil && pgErr.Code == notNullViolationCode
}
