package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/plotform-labs/plotform/internal/metrics"
)

// MiddlewareConfig controls which routes the auth middleware protects.
type MiddlewareConfig struct {
	Manager *Manager

	// Routes that don't require authentication
	PublicRoutes []string

	// Route prefixes that don't require authentication
	PublicPrefixes []string

	// Skip authentication entirely (for development/testing)
	Skip bool
}

// DefaultMiddlewareConfig returns the default public-route set.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		PublicRoutes: []string{
			"/health",
			"/ready",
			"/api/v1/auth/verify",
		},
		PublicPrefixes: []string{
			"/metrics",
		},
	}
}

// NewMiddleware creates authentication middleware for Fiber.
func NewMiddleware(config MiddlewareConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if config.Skip {
			return c.Next()
		}

		path := c.Path()
		for _, route := range config.PublicRoutes {
			if path == route {
				return c.Next()
			}
		}
		for _, prefix := range config.PublicPrefixes {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		if config.Manager == nil {
			return c.Next()
		}

		metrics.Get().IncAuthRequests()

		token := ExtractTokenFromRequest(c)
		if token == "" {
			metrics.Get().IncAuthFailures()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Authentication required",
			})
		}

		tokenInfo := config.Manager.VerifyToken(token)
		if tokenInfo == nil {
			metrics.Get().IncAuthFailures()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or expired token",
			})
		}

		c.Locals("token_info", tokenInfo)
		return c.Next()
	}
}

// GetTokenInfo retrieves the verified token from the Fiber context.
func GetTokenInfo(c *fiber.Ctx) *TokenInfo {
	if info, ok := c.Locals("token_info").(*TokenInfo); ok {
		return info
	}
	return nil
}

// ExtractTokenFromRequest extracts the auth token from request headers.
// Checks in order: Authorization Bearer, Authorization plain, x-api-key.
func ExtractTokenFromRequest(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if authHeader != "" {
		return authHeader
	}
	return c.Get("x-api-key")
}
