package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/job-tracker/internal/domain"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

const (
	principalKey = "auth_principal"
	sessionKey   = "auth_session"
)

// SessionResolver turns a bearer token into the acting principal.
type SessionResolver interface {
	CurrentSession(ctx context.Context, token string) (*domain.Principal, *domain.Session, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	sessions SessionResolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(sessions SessionResolver) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Handle enforces authentication for protected routes. Browsers cannot set
// headers on an EventSource, so the token may also arrive as access_token.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c)
	if err != nil {
		return err
	}
	principal, session, err := m.sessions.CurrentSession(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	c.Locals(sessionKey, session)
	return c.Next()
}

// IsRevoked reports whether the session has been signed out since the
// request was authenticated.
func (m *AuthMiddleware) IsRevoked(c *fiber.Ctx) (bool, error) {
	session, ok := SessionFromContext(c)
	if !ok {
		return true, nil
	}
	return m.sessions.IsRevoked(c.UserContext(), session.TokenID)
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(*domain.Principal)
	return principal, ok && principal != nil
}

// SessionFromContext retrieves the session behind the request token.
func SessionFromContext(c *fiber.Ctx) (*domain.Session, bool) {
	session, ok := c.Locals(sessionKey).(*domain.Session)
	return session, ok && session != nil
}
