package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/nimbusdesk/console/internal/models"
)

const principalKey = "principal"

// PrincipalSource resolves an authenticated subject to a principal record.
type PrincipalSource interface {
	Get(id string) (models.Principal, error)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string // "jwt" or "header" (dev only)
	JWTSecret string
}

// NewAuthMiddleware returns a Fiber middleware that authenticates the caller
// and attaches the resolved principal to the request. Authentication only —
// authorization stays with the resolver and workflow behind each handler.
func NewAuthMiddleware(cfg AuthConfig, principals PrincipalSource, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Probe endpoints stay open
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		var subject string
		switch strings.ToLower(cfg.Mode) {
		case "header":
			subject = c.Get("X-Principal-ID")
			if subject == "" {
				return problemResponse(c, fiber.StatusUnauthorized,
					"missing_principal", "Unauthorized",
					"X-Principal-ID header is required")
			}
		default:
			authHeader := c.Get("Authorization")
			if authHeader == "" {
				return problemResponse(c, fiber.StatusUnauthorized,
					"missing_auth", "Unauthorized",
					"Authorization header is required")
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_auth_scheme", "Unauthorized",
					"Authorization header must use Bearer scheme")
			}
			raw := strings.TrimPrefix(authHeader, "Bearer ")

			sub, err := parseSubject(raw, cfg.JWTSecret)
			if err != nil {
				logger.Warn().
					Str("path", path).
					Str("method", c.Method()).
					Err(err).
					Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized",
					"Invalid or expired token")
			}
			subject = sub
		}

		p, err := principals.Get(subject)
		if err != nil {
			logger.Warn().Str("subject", subject).Msg("unauthorized request: unknown principal")
			return problemResponse(c, fiber.StatusUnauthorized,
				"unknown_principal", "Unauthorized",
				"Principal not recognized")
		}
		if !p.IsActive {
			return problemResponse(c, fiber.StatusForbidden,
				"inactive_principal", "Forbidden",
				"Principal is deactivated")
		}

		c.Locals(principalKey, p)
		return c.Next()
	}
}

// parseSubject validates an HS256 token and extracts its subject claim.
func parseSubject(raw, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// principalFromCtx returns the principal attached by the auth middleware.
func principalFromCtx(c *fiber.Ctx) (models.Principal, bool) {
	p, ok := c.Locals(principalKey).(models.Principal)
	return p, ok
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
