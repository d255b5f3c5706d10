package auth

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

func newMiddlewareApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "auth.db"), time.Minute, 100, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })

	token, err := m.CreateToken("mw-test", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultMiddlewareConfig()
	cfg.Manager = m

	app := fiber.New()
	app.Use(NewMiddleware(cfg))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics/extra", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/v1/protected", func(c *fiber.Ctx) error {
		info := GetTokenInfo(c)
		if info == nil {
			t.Error("token info missing from context on an authenticated request")
		}
		return c.SendString("ok")
	})
	return app, token
}

func TestMiddleware_PublicRoutes(t *testing.T) {
	app, _ := newMiddlewareApp(t)

	for _, path := range []string{"/health", "/metrics/extra"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("GET %s = %d, want 200 without credentials", path, resp.StatusCode)
		}
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	app, _ := newMiddlewareApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/protected", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	app, _ := newMiddlewareApp(t)

	req := httptest.NewRequest("GET", "/api/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMiddleware_TokenHeaderVariants(t *testing.T) {
	app, token := newMiddlewareApp(t)

	headers := []struct {
		name  string
		key   string
		value string
	}{
		{"bearer", "Authorization", "Bearer " + token},
		{"plain-authorization", "Authorization", token},
		{"x-api-key", "x-api-key", token},
	}
	for _, h := range headers {
		req := httptest.NewRequest("GET", "/api/v1/protected", nil)
		req.Header.Set(h.key, h.value)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("%s: status = %d, want 200", h.name, resp.StatusCode)
		}
	}
}

func TestMiddleware_SkipBypassesAuth(t *testing.T) {
	cfg := DefaultMiddlewareConfig()
	cfg.Skip = true

	app := fiber.New()
	app.Use(NewMiddleware(cfg))
	app.Get("/api/v1/anything", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/anything", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200 with Skip", resp.StatusCode)
	}
}
