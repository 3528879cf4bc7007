// Package sqlitestore implements the repository interfaces on SQLite. It backs
// single-node deployments and the service tests.
package sqlitestore

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spec-kit/job-tracker/internal/repository"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatDate(t time.Time) any {
	return t.Format(dateLayout)
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func binder(args *[]any) func(any) string {
	return func(v any) string {
		*args = append(*args, v)
		return "?"
	}
}

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}

	msg := sqliteErr.Error()
	constraint := ""
	if idx := strings.Index(msg, "failed: "); idx >= 0 {
		constraint = strings.TrimSpace(msg[idx+len("failed: "):])
		if end := strings.Index(constraint, " ("); end >= 0 {
			constraint = constraint[:end]
		}
	}

	switch {
	case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		return &repository.ConstraintError{Constraint: constraint, Err: repository.ErrDuplicateKey, Cause: err}
	case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &repository.ConstraintError{Err: repository.ErrInvalidReference, Cause: err}
	case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK,
		strings.Contains(msg, "CHECK constraint failed"):
		return &repository.ConstraintError{Constraint: constraint, Err: repository.ErrCheckViolation, Cause: err}
	}
	return err
}
