package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/job-tracker/internal/api/dto"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/service"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// UsersHandler exposes profile and role management endpoints.
type UsersHandler struct {
	roles    *service.RoleService
	profiles *service.ProfileService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(roles *service.RoleService, profiles *service.ProfileService) *UsersHandler {
	return &UsersHandler{roles: roles, profiles: profiles}
}

// List handles GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	users, err := h.roles.ListUsers(c.UserContext(), principal)
	if err != nil {
		return err
	}
	items := make([]dto.UserWithRolesResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.UserWithRolesResponse{
			ProfileResponse: dto.NewProfileResponse(&users[i].Profile),
			Roles:           users[i].Roles.List(),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Declarants handles GET /users/declarants.
func (h *UsersHandler) Declarants(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	profiles, err := h.roles.ListDeclarants(c.UserContext(), principal)
	if err != nil {
		return err
	}
	items := make([]dto.ProfileResponse, 0, len(profiles))
	for i := range profiles {
		items = append(items, dto.NewProfileResponse(&profiles[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateProfile handles PATCH /users/:id/profile.
func (h *UsersHandler) UpdateProfile(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	profile, err := h.profiles.UpdateProfile(c.UserContext(), principal, c.Params("id"), service.UpdateProfileInput{
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewProfileResponse(profile)})
}

// GrantRole handles POST /users/:id/roles.
func (h *UsersHandler) GrantRole(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.GrantRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	userID := c.Params("id")
	if err := h.roles.Grant(c.UserContext(), principal, userID, req.Role); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"user_id": userID, "role": req.Role}})
}

// RevokeRole handles DELETE /users/:id/roles/:role.
func (h *UsersHandler) RevokeRole(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	if err := h.roles.Revoke(c.UserContext(), principal, c.Params("id"), domain.Role(c.Params("role"))); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
