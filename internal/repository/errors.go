package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a unique constraint rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidReference is returned when a foreign key rejects a write.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrCheckViolation is returned when a CHECK constraint rejects a write.
	ErrCheckViolation = errors.New("check constraint violated")
	// ErrAlreadyAllocated is returned when a conditional claim loses.
	ErrAlreadyAllocated = errors.New("job already allocated")
)

// ConstraintError names the constraint behind a rejected write.
type ConstraintError struct {
	Constraint string
	Err        error
	Cause      error
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Constraint)
}

// Unwrap exposes the sentinel so callers can use errors.Is.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// TranslatePgError maps pgx driver errors onto repository sentinels. Errors
// it does not recognize are returned unchanged.
func TranslatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &ConstraintError{Constraint: pgErr.ConstraintName, Err: ErrDuplicateKey, Cause: err}
		case pgerrcode.ForeignKeyViolation:
			return &ConstraintError{Constraint: pgErr.ConstraintName, Err: ErrInvalidReference, Cause: err}
		case pgerrcode.CheckViolation:
			return &ConstraintError{Constraint: pgErr.ConstraintName, Err: ErrCheckViolation, Cause: err}
		}
	}
	return err
}
