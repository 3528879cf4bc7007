package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// ProfileService reads and updates user profiles.
type ProfileService struct {
	profiles   repository.ProfileRepository
	bcryptCost int
	logger     *zap.Logger
}

// ProfileDependencies bundles collaborators for the profile service.
type ProfileDependencies struct {
	ProfileRepo repository.ProfileRepository
	BcryptCost  int
	Logger      *zap.Logger
}

// UpdateProfileInput is a partial profile change.
type UpdateProfileInput struct {
	FullName *string
	Password *string
}

// NewProfileService constructs the service.
func NewProfileService(deps ProfileDependencies) *ProfileService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{profiles: deps.ProfileRepo, bcryptCost: deps.BcryptCost, logger: logger}
}

// GetByEmployeeID looks a profile up by its employee identifier.
func (s *ProfileService) GetByEmployeeID(ctx context.Context, employeeID string) (*domain.Profile, error) {
	profile, err := s.profiles.GetByEmail(ctx, domain.InternalEmail(employeeID))
	if err != nil {
		return nil, storeError(err, "user", map[string]any{"employee_id": employeeID})
	}
	return profile, nil
}

// UpdateProfile changes the name or password of userID. Only the owner or a
// principal that manages roles may do this.
func (s *ProfileService) UpdateProfile(ctx context.Context, actor *domain.Principal, userID string, input UpdateProfileInput) (*domain.Profile, error) {
	if actor.UserID() != userID && !actor.Can(domain.CapManageRoles) {
		return nil, apperrors.NewForbidden("you can only update your own profile")
	}
	if input.FullName == nil && input.Password == nil {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "user", map[string]any{"user_id": userID})
	}
	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" || len([]rune(name)) > domain.MaxFullNameLength {
			return nil, apperrors.NewFieldError("full_name", "full name must be between 1 and 100 characters")
		}
		profile.FullName = name
	}
	if input.Password != nil {
		if err := validatePassword(*input.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*input.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		profile.PasswordHash = hash
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, storeError(err, "user", nil)
	}
	s.logger.Info("profile updated", zap.String("user_id", userID), zap.String("actor_id", actor.UserID()))
	return profile, nil
}
