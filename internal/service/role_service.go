package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// RoleService manages role assignments and resolves capabilities.
type RoleService struct {
	roles    repository.RoleRepository
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

// RoleDependencies bundles collaborators for the role service.
type RoleDependencies struct {
	RoleRepo    repository.RoleRepository
	ProfileRepo repository.ProfileRepository
	Logger      *zap.Logger
}

// NewRoleService constructs the service.
func NewRoleService(deps RoleDependencies) *RoleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{roles: deps.RoleRepo, profiles: deps.ProfileRepo, logger: logger}
}

// RolesOf returns the roles userID holds. Unknown users hold none.
func (s *RoleService) RolesOf(ctx context.Context, userID string) (domain.RoleSet, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "roles", nil)
	}
	return domain.NewRoleSet(roles...), nil
}

// Capabilities is the union of the capabilities of every role userID holds.
func (s *RoleService) Capabilities(ctx context.Context, userID string) (domain.CapabilitySet, error) {
	roles, err := s.RolesOf(ctx, userID)
	if err != nil {
		return 0, err
	}
	return roles.Capabilities(), nil
}

// Grant assigns role to userID. A repeated grant is rejected by the store's
// unique constraint.
func (s *RoleService) Grant(ctx context.Context, actor *domain.Principal, userID string, role domain.Role) error {
	if !actor.Can(domain.CapManageRoles) {
		return apperrors.NewForbidden("you cannot manage roles")
	}
	return s.grant(ctx, actor.UserID(), userID, role)
}

func (s *RoleService) grant(ctx context.Context, actorID, userID string, role domain.Role) error {
	if !role.Valid() {
		return apperrors.NewFieldError("role", "unknown role "+string(role))
	}
	err := s.roles.Insert(ctx, &domain.RoleAssignment{UserID: userID, Role: role})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicateKey):
		return apperrors.NewDuplicateRoleAssignment(string(role))
	case errors.Is(err, repository.ErrInvalidReference):
		return apperrors.NewNotFound("user", map[string]any{"user_id": userID})
	default:
		return storeError(err, "role", nil)
	}
	s.logger.Info("role granted",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("actor_id", actorID))
	return nil
}

// Revoke removes role from userID.
func (s *RoleService) Revoke(ctx context.Context, actor *domain.Principal, userID string, role domain.Role) error {
	if !actor.Can(domain.CapManageRoles) {
		return apperrors.NewForbidden("you cannot manage roles")
	}
	if !role.Valid() {
		return apperrors.NewFieldError("role", "unknown role "+string(role))
	}
	if err := s.roles.Delete(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewRoleNotAssigned(string(role))
		}
		return storeError(err, "role", nil)
	}
	s.logger.Info("role revoked",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("actor_id", actor.UserID()))
	return nil
}

// ListUsers returns every profile with its roles, ordered by full name.
func (s *RoleService) ListUsers(ctx context.Context, actor *domain.Principal) ([]domain.UserWithRoles, error) {
	if !actor.Can(domain.CapManageRoles) {
		return nil, apperrors.NewForbidden("you cannot manage roles")
	}
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, storeError(err, "users", nil)
	}
	assignments, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, storeError(err, "roles", nil)
	}

	byUser := make(map[string][]domain.Role, len(profiles))
	for _, a := range assignments {
		byUser[a.UserID] = append(byUser[a.UserID], a.Role)
	}
	users := make([]domain.UserWithRoles, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, domain.UserWithRoles{Profile: p, Roles: domain.NewRoleSet(byUser[p.ID]...)})
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Profile.FullName < users[j].Profile.FullName })
	return users, nil
}

// ListDeclarants returns the users jobs can be allocated to.
func (s *RoleService) ListDeclarants(ctx context.Context, actor *domain.Principal) ([]domain.Profile, error) {
	if !actor.Capabilities.HasAny(domain.CapAllocateJob, domain.CapManageRoles) {
		return nil, apperrors.NewForbidden("you cannot list declarants")
	}
	profiles, err := s.roles.ListUsersByRole(ctx, domain.RoleDeclarant)
	if err != nil {
		return nil, storeError(err, "users", nil)
	}
	return profiles, nil
}

// Bootstrap grants admin to userID while nobody can manage roles yet.
func (s *RoleService) Bootstrap(ctx context.Context, userID string) error {
	n, err := s.roles.CountWithAnyRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return storeError(err, "roles", nil)
	}
	if n > 0 {
		return apperrors.NewConflict("an administrator already exists", nil)
	}
	return s.grant(ctx, "bootstrap", userID, domain.RoleAdmin)
}
