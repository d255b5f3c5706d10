package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "auth.db"), 5*time.Minute, 100, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateAndVerifyToken(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateToken("test-token", "a test token", nil)
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("CreateToken returned an empty token")
	}

	info := m.VerifyToken(token)
	if info == nil {
		t.Fatal("freshly created token failed verification")
	}
	if info.Name != "test-token" || info.Description != "a test token" {
		t.Errorf("token info = %+v", info)
	}
	if !info.Enabled {
		t.Error("new tokens are enabled")
	}
}

func TestCreateToken_DuplicateName(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateToken("dup", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateToken("dup", "", nil); err == nil {
		t.Fatal("duplicate name should be rejected")
	}
}

func TestVerifyToken_Invalid(t *testing.T) {
	m := newTestManager(t)
	m.CreateToken("real", "", nil)

	if m.VerifyToken("not-a-real-token") != nil {
		t.Error("bogus token verified")
	}
	if m.VerifyToken("") != nil {
		t.Error("empty token verified")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	m := newTestManager(t)
	past := time.Now().Add(-time.Hour)
	token, err := m.CreateToken("expired", "", &past)
	if err != nil {
		t.Fatal(err)
	}
	if m.VerifyToken(token) != nil {
		t.Error("expired token verified")
	}
}

func TestVerifyToken_CacheHit(t *testing.T) {
	m := newTestManager(t)
	token, _ := m.CreateToken("cached", "", nil)

	if m.VerifyToken(token) == nil {
		t.Fatal("first verify failed")
	}
	if m.VerifyToken(token) == nil {
		t.Fatal("second verify failed")
	}

	stats := m.CacheStats()
	if stats["cache_hits"].(int64) < 1 {
		t.Errorf("cache stats = %v, want at least one hit", stats)
	}
}

func TestRevokeToken(t *testing.T) {
	m := newTestManager(t)
	token, _ := m.CreateToken("revokeme", "", nil)
	info := m.VerifyToken(token)
	if info == nil {
		t.Fatal("verify before revoke failed")
	}

	if err := m.RevokeToken(info.ID); err != nil {
		t.Fatal(err)
	}
	// Revoke invalidates the cache so the disabled row is consulted
	if m.VerifyToken(token) != nil {
		t.Error("revoked token still verifies")
	}

	tokens, err := m.ListTokens()
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].Enabled {
		t.Errorf("tokens after revoke = %+v, want disabled record kept", tokens)
	}
}

func TestDeleteToken(t *testing.T) {
	m := newTestManager(t)
	token, _ := m.CreateToken("deleteme", "", nil)
	info := m.VerifyToken(token)

	if err := m.DeleteToken(info.ID); err != nil {
		t.Fatal(err)
	}
	if m.VerifyToken(token) != nil {
		t.Error("deleted token still verifies")
	}
	if err := m.DeleteToken(9999); err == nil {
		t.Error("deleting a missing token should error")
	}
}

func TestEnsureInitialToken(t *testing.T) {
	m := newTestManager(t)

	token, err := m.EnsureInitialToken()
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("first run should mint an admin token")
	}
	if m.VerifyToken(token) == nil {
		t.Error("initial token fails verification")
	}

	// Second call is a no-op
	again, err := m.EnsureInitialToken()
	if err != nil {
		t.Fatal(err)
	}
	if again != "" {
		t.Error("EnsureInitialToken minted a second token")
	}
}

func TestInvalidateCache(t *testing.T) {
	m := newTestManager(t)
	token, _ := m.CreateToken("c", "", nil)
	m.VerifyToken(token)

	m.InvalidateCache()
	stats := m.CacheStats()
	if stats["cache_size"].(int) != 0 {
		t.Errorf("cache size = %v after invalidate", stats["cache_size"])
	}
	// Still verifies against the database
	if m.VerifyToken(token) == nil {
		t.Error("token fails verification after cache invalidation")
	}
}
