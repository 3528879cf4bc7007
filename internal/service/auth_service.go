package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// SignUpInput carries the sign-up form.
type SignUpInput struct {
	EmployeeID      string
	FullName        string
	Password        string
	ConfirmPassword string
}

// AuthService coordinates registration and sign-in flows.
type AuthService struct {
	profiles    repository.ProfileRepository
	roles       repository.RoleRepository
	tokenMgr    *auth.TokenManager
	revocations auth.RevocationStore
	bcryptCost  int
	logger      *zap.Logger
	now         func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	ProfileRepo repository.ProfileRepository
	RoleRepo    repository.RoleRepository
	Revocations auth.RevocationStore
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	revocations := deps.Revocations
	if revocations == nil {
		revocations = auth.NewMemoryRevocationStore()
	}
	return &AuthService{
		profiles:    deps.ProfileRepo,
		roles:       deps.RoleRepo,
		tokenMgr:    auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.App.Name),
		revocations: revocations,
		bcryptCost:  cfg.Auth.BcryptCost,
		logger:      logger,
		now:         time.Now,
	}
}

// SignUp creates a profile and signs it in. New users hold no roles.
func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (*domain.Principal, *domain.Session, error) {
	employeeID := strings.TrimSpace(input.EmployeeID)
	fullName := strings.TrimSpace(input.FullName)
	switch {
	case employeeID == "":
		return nil, nil, apperrors.NewFieldError("employee_id", "employee id is required")
	case len([]rune(employeeID)) > domain.MaxEmployeeIDLength:
		return nil, nil, apperrors.NewFieldError("employee_id", "employee id must be at most 50 characters")
	case fullName == "":
		return nil, nil, apperrors.NewFieldError("full_name", "full name is required")
	case len([]rune(fullName)) > domain.MaxFullNameLength:
		return nil, nil, apperrors.NewFieldError("full_name", "full name must be at most 100 characters")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}
	if input.Password != input.ConfirmPassword {
		return nil, nil, apperrors.NewFieldError("confirm_password", "passwords do not match")
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	profile := &domain.Profile{
		ID:           uuid.NewString(),
		EmployeeID:   employeeID,
		FullName:     fullName,
		Email:        domain.InternalEmail(employeeID),
		PasswordHash: hash,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, nil, apperrors.NewEmployeeIDTaken()
		}
		return nil, nil, storeError(err, "user", nil)
	}
	s.logger.Info("user signed up", zap.String("user_id", profile.ID), zap.String("employee_id", employeeID))
	return s.openSession(profile, domain.NewRoleSet())
}

// SignIn verifies credentials and opens a session.
func (s *AuthService) SignIn(ctx context.Context, employeeID, password string) (*domain.Principal, *domain.Session, error) {
	if strings.TrimSpace(employeeID) == "" || password == "" {
		return nil, nil, apperrors.NewValidationError("employee id and password are required", nil)
	}
	profile, err := s.profiles.GetByEmail(ctx, domain.InternalEmail(employeeID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.NewUnauthorized("invalid employee id or password")
		}
		return nil, nil, storeError(err, "user", nil)
	}
	if err := auth.ComparePassword(profile.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid employee id or password")
	}
	roles, err := s.roles.ListByUser(ctx, profile.ID)
	if err != nil {
		return nil, nil, storeError(err, "roles", nil)
	}
	s.logger.Info("user signed in", zap.String("user_id", profile.ID))
	return s.openSession(profile, domain.NewRoleSet(roles...))
}

// SignOut revokes the session until its token would have expired.
func (s *AuthService) SignOut(ctx context.Context, session *domain.Session) error {
	if session == nil || session.TokenID == "" {
		return apperrors.NewUnauthorized("no active session")
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.revocations.Revoke(ctx, session.TokenID, ttl); err != nil {
		return apperrors.NewTransient(err)
	}
	s.logger.Info("user signed out", zap.String("user_id", session.UserID))
	return nil
}

// CurrentSession resolves a bearer token to its principal. Expired, malformed
// and revoked tokens are all Unauthorized.
func (s *AuthService) CurrentSession(ctx context.Context, token string) (*domain.Principal, *domain.Session, error) {
	claims, err := s.tokenMgr.ParseToken(token)
	if err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid token")
	}
	revoked, err := s.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, apperrors.NewUnauthorized("session has ended")
	}

	profile, err := s.profiles.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, nil, storeError(err, "user", nil)
	}
	roles, err := s.roles.ListByUser(ctx, profile.ID)
	if err != nil {
		return nil, nil, storeError(err, "roles", nil)
	}
	principal := domain.NewPrincipal(*profile, domain.NewRoleSet(roles...))
	principal.SessionID = claims.ID
	return principal, auth.SessionFromClaims(token, claims), nil
}

// IsRevoked reports whether the token id has been signed out.
func (s *AuthService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := s.revocations.IsRevoked(ctx, tokenID)
	if err != nil {
		return false, apperrors.NewTransient(err)
	}
	return revoked, nil
}

// TokenManager exposes the underlying token manager.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) openSession(profile *domain.Profile, roles domain.RoleSet) (*domain.Principal, *domain.Session, error) {
	session, err := s.tokenMgr.GenerateToken(profile)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	principal := domain.NewPrincipal(*profile, roles)
	principal.SessionID = session.TokenID
	return principal, session, nil
}

func validatePassword(password string) error {
	n := len([]rune(password))
	if n < domain.MinPasswordLength || n > domain.MaxPasswordLength {
		return apperrors.NewFieldError("password", "password must be between 8 and 100 characters")
	}
	return nil
}
