package domain

import (
	"strings"
	"time"
)

// InternalEmailDomain is the address suffix the auth layer derives from an
// employee identifier.
const InternalEmailDomain = "company.internal"

// Profile limits enforced at sign-up.
const (
	MaxEmployeeIDLength = 50
	MaxFullNameLength   = 100
	MinPasswordLength   = 8
	MaxPasswordLength   = 100
)

// Profile is the user record created on first sign-up.
type Profile struct {
	ID           string
	EmployeeID   string
	FullName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary returns the display form used in job views.
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{ID: p.ID, EmployeeID: p.EmployeeID, FullName: p.FullName}
}

// InternalEmail maps an employee identifier to its internal address form.
func InternalEmail(employeeID string) string {
	return strings.ToLower(strings.TrimSpace(employeeID)) + "@" + InternalEmailDomain
}

// UserWithRoles pairs a profile with the roles it holds.
type UserWithRoles struct {
	Profile Profile
	Roles   RoleSet
}
