package dto

import (
	"time"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// SignUpRequest payload for new users.
type SignUpRequest struct {
	EmployeeID      string `json:"employee_id"`
	FullName        string `json:"full_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// SignInRequest payload for sign-in.
type SignInRequest struct {
	EmployeeID string `json:"employee_id"`
	Password   string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileResponse is the public form of a profile.
type ProfileResponse struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	User         ProfileResponse `json:"user"`
	Roles        []domain.Role   `json:"roles"`
	Capabilities []string        `json:"capabilities"`
	Auth         *AuthResponse   `json:"auth,omitempty"`
}

// UserWithRolesResponse is one row of the role management list.
type UserWithRolesResponse struct {
	ProfileResponse
	Roles []domain.Role `json:"roles"`
}

// UpdateProfileRequest payload. Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

// GrantRoleRequest payload.
type GrantRoleRequest struct {
	Role domain.Role `json:"role"`
}

// NewProfileResponse maps a profile.
func NewProfileResponse(p *domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:         p.ID,
		EmployeeID: p.EmployeeID,
		FullName:   p.FullName,
		Email:      p.Email,
		CreatedAt:  p.CreatedAt,
	}
}

// NewSessionResponse maps a principal and, when freshly issued, its token.
func NewSessionResponse(principal *domain.Principal, session *domain.Session) SessionResponse {
	resp := SessionResponse{
		User:         NewProfileResponse(&principal.Profile),
		Roles:        principal.Roles.List(),
		Capabilities: principal.Capabilities.Names(),
	}
	if session != nil {
		resp.Auth = &AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt}
	}
	return resp
}
