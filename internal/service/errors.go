package service

import (
	"errors"

	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// storeError maps repository failures that have no operation-specific
// meaning. Unknown errors are treated as transient store failures.
func storeError(err error, resource string, details map[string]any) error {
	var domainErr *apperrors.DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrCheckViolation):
		return apperrors.NewValidationError("record violates a data rule", details)
	case errors.Is(err, repository.ErrInvalidReference):
		return apperrors.NewValidationError("referenced user does not exist", details)
	default:
		return apperrors.NewTransient(err)
	}
}

func constraintName(err error) string {
	var ce *repository.ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}
