package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/repository"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
}

// IsStaff reports whether the caller may use the admin surface.
func (p *Principal) IsStaff() bool {
	return p != nil && p.User != nil && p.User.IsStaff
}

// AuthMiddleware resolves identity tokens and mirrors the user locally.
type AuthMiddleware struct {
	tokens         *TokenManager
	users          repository.UserRepository
	cookieName     string
	connectTimeout time.Duration
}

// NewAuthMiddleware constructs middleware. connectTimeout bounds identity
// resolution for real-time connections.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, cookieName string, connectTimeout time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:         tokens,
		users:          users,
		cookieName:     cookieName,
		connectTimeout: connectTimeout,
	}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := m.tokenFromRequest(c, false)
	if err != nil {
		return err
	}
	principal, err := m.resolve(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// HandleWebSocket authenticates a websocket handshake. Browsers cannot set
// headers on websocket requests, so the token query parameter is accepted
// too. Failures are reported as rejected connections.
func (m *AuthMiddleware) HandleWebSocket(c *fiber.Ctx) error {
	token, err := m.tokenFromRequest(c, true)
	if err != nil {
		return apperrors.NewConnectionRejected("authentication required", http.StatusUnauthorized)
	}

	ctx := c.UserContext()
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	principal, err := m.resolve(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.NewConnectionRejected("identity resolution timed out", http.StatusServiceUnavailable)
		}
		return apperrors.NewConnectionRejected("authentication required", http.StatusUnauthorized)
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

func (m *AuthMiddleware) tokenFromRequest(c *fiber.Ctx, allowQuery bool) (string, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", apperrors.NewUnauthorized("invalid authorization header")
		}
		return parts[1], nil
	}
	if m.cookieName != "" {
		if cookie := c.Cookies(m.cookieName); cookie != "" {
			return cookie, nil
		}
	}
	if allowQuery {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
	}
	return "", apperrors.NewUnauthorized("missing credentials")
}

func (m *AuthMiddleware) resolve(ctx context.Context, token string) (*Principal, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	user := &domain.User{
		ID:       claims.Subject,
		Username: claims.Username,
		IsStaff:  claims.Staff,
	}
	if err := m.users.Upsert(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return &Principal{User: user}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
