package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/job-tracker/internal/domain"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// RequireAuthenticated ensures a principal has been loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireCapability ensures the principal holds at least one of caps.
func RequireCapability(caps ...domain.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Capabilities.HasAny(caps...) {
			return apperrors.NewForbidden("insufficient permissions")
		}
		return c.Next()
	}
}
