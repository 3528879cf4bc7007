package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients.
const (
	CodeValidation              = "VALIDATION_FAILED"
	CodeEmptyFile               = "EMPTY_FILE"
	CodeMissingColumns          = "MISSING_COLUMNS"
	CodeDuplicateReference      = "DUPLICATE_REFERENCE"
	CodeDuplicateRoleAssignment = "DUPLICATE_ROLE_ASSIGNMENT"
	CodeEmployeeIDTaken         = "EMPLOYEE_ID_TAKEN"
	CodeRoleNotAssigned         = "ROLE_NOT_ASSIGNED"
	CodeAlreadyAllocated        = "ALREADY_ALLOCATED"
	CodeNotFound                = "NOT_FOUND"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeConflict                = "CONFLICT"
	CodeTransientIO             = "TRANSIENT_IO"
	CodeInternal                = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewFieldError reports a single invalid field.
func NewFieldError(field, message string) error {
	return NewValidationError(message, map[string]any{"field": field})
}

func NewEmptyFile() error {
	return NewDomainError(CodeEmptyFile, "the uploaded file is empty", http.StatusBadRequest, nil)
}

func NewMissingColumns(missing []string) error {
	return NewDomainError(CodeMissingColumns, "file must contain 'Job Ref' and 'Importer/Exporter' columns",
		http.StatusBadRequest, map[string]any{"missing": missing})
}

func NewDuplicateReference(details map[string]any) error {
	return NewDomainError(CodeDuplicateReference, "job reference already exists", http.StatusConflict, details)
}

func NewDuplicateRoleAssignment(role string) error {
	return NewDomainError(CodeDuplicateRoleAssignment, "user already has this role", http.StatusConflict,
		map[string]any{"role": role})
}

func NewEmployeeIDTaken() error {
	return NewDomainError(CodeEmployeeIDTaken, "this employee id is already registered", http.StatusConflict, nil)
}

func NewRoleNotAssigned(role string) error {
	return NewDomainError(CodeRoleNotAssigned, "user does not have this role", http.StatusNotFound,
		map[string]any{"role": role})
}

func NewAlreadyAllocated(jobID string) error {
	return NewDomainError(CodeAlreadyAllocated, "job has already been allocated", http.StatusConflict,
		map[string]any{"job_id": jobID})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewTransient wraps a store or network failure. Callers may retry; the core
// never does.
func NewTransient(err error) error {
	return &DomainError{
		Code:       CodeTransientIO,
		Message:    "temporary failure, please try again",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
