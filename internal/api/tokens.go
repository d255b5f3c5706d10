package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/auth"
)

// TokensHandler handles API token management endpoints.
type TokensHandler struct {
	manager *auth.Manager
	logger  zerolog.Logger
}

// NewTokensHandler creates the token management handler.
func NewTokensHandler(manager *auth.Manager, logger zerolog.Logger) *TokensHandler {
	return &TokensHandler{
		manager: manager,
		logger:  logger.With().Str("component", "tokens-handler").Logger(),
	}
}

// RegisterRoutes registers the auth endpoints.
func (h *TokensHandler) RegisterRoutes(app *fiber.App) {
	authGroup := app.Group("/api/v1/auth")

	// Public endpoint, used by clients to check credentials
	authGroup.Get("/verify", h.verifyToken)

	authGroup.Get("/tokens", h.listTokens)
	authGroup.Post("/tokens", h.createToken)
	authGroup.Delete("/tokens/:id", h.deleteToken)
	authGroup.Post("/tokens/:id/revoke", h.revokeToken)

	authGroup.Get("/cache/stats", h.getCacheStats)
	authGroup.Post("/cache/invalidate", h.invalidateCache)
}

// verifyToken handles GET /api/v1/auth/verify
func (h *TokensHandler) verifyToken(c *fiber.Ctx) error {
	token := auth.ExtractTokenFromRequest(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"valid": false,
			"error": "No token provided",
		})
	}

	info := h.manager.VerifyToken(token)
	if info == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"valid": false,
			"error": "Invalid or expired token",
		})
	}

	return c.JSON(fiber.Map{
		"valid":      true,
		"token_info": info,
	})
}

// CreateTokenRequest represents a token creation request.
type CreateTokenRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ExpiresIn   string `json:"expires_in,omitempty"` // e.g. "24h", "7d", "30d"
}

// createToken handles POST /api/v1/auth/tokens
func (h *TokensHandler) createToken(c *fiber.Ctx) error {
	var req CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Token name is required",
		})
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		dur, err := parseExpiry(req.ExpiresIn)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid expires_in: " + err.Error(),
			})
		}
		t := time.Now().Add(dur)
		expiresAt = &t
	}

	token, err := h.manager.CreateToken(req.Name, req.Description, expiresAt)
	if err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to create token",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"name":    req.Name,
		"token":   token,
	})
}

// listTokens handles GET /api/v1/auth/tokens
func (h *TokensHandler) listTokens(c *fiber.Ctx) error {
	tokens, err := h.manager.ListTokens()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to list tokens",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"tokens":  tokens,
	})
}

// deleteToken handles DELETE /api/v1/auth/tokens/:id
func (h *TokensHandler) deleteToken(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid token ID",
		})
	}
	if err := h.manager.DeleteToken(id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to delete token",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// revokeToken handles POST /api/v1/auth/tokens/:id/revoke
func (h *TokensHandler) revokeToken(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid token ID",
		})
	}
	if err := h.manager.RevokeToken(id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to revoke token",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *TokensHandler) getCacheStats(c *fiber.Ctx) error {
	return c.JSON(h.manager.CacheStats())
}

func (h *TokensHandler) invalidateCache(c *fiber.Ctx) error {
	h.manager.InvalidateCache()
	return c.JSON(fiber.Map{"success": true})
}

// parseExpiry parses durations like "24h" via time.ParseDuration plus a "d"
// suffix for days, which clients use far more often than hours.
func parseExpiry(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
