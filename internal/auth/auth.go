// Package auth issues and verifies API tokens backed by SQLite. Tokens are
// stored as bcrypt hashes; verified tokens are cached under a sha256 key so
// the hot path skips the bcrypt comparison.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

// TokenInfo is the metadata returned for a verified token.
type TokenInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Enabled     bool      `json:"enabled"`
}

type cacheEntry struct {
	info      *TokenInfo
	expiresAt time.Time
}

// Manager handles API token authentication with SQLite storage.
type Manager struct {
	db           *sql.DB
	cacheTTL     time.Duration
	maxCacheSize int

	cacheMu     sync.RWMutex
	cache       map[string]cacheEntry // sha256(token) -> cached info
	cacheHits   int64
	cacheMisses int64

	cleanupDone chan struct{}
	logger      zerolog.Logger
}

// NewManager opens the token database and starts cache maintenance.
func NewManager(dbPath string, cacheTTL time.Duration, maxCacheSize int, logger zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open auth database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	m := &Manager{
		db:           db,
		cacheTTL:     cacheTTL,
		maxCacheSize: maxCacheSize,
		cache:        make(map[string]cacheEntry),
		cleanupDone:  make(chan struct{}),
		logger:       logger.With().Str("component", "auth").Logger(),
	}

	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	go m.cleanupLoop()

	m.logger.Info().
		Str("db_path", dbPath).
		Dur("cache_ttl", cacheTTL).
		Msg("Auth manager initialized")
	return m, nil
}

func (m *Manager) initSchema() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			token_hash TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_used_at TIMESTAMP,
			expires_at TIMESTAMP,
			enabled INTEGER DEFAULT 1
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create api_tokens table: %w", err)
	}
	if _, err := m.db.Exec(`CREATE INDEX IF NOT EXISTS idx_api_tokens_enabled ON api_tokens(enabled)`); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	interval := m.cacheTTL
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.cleanupDone:
			return
		}
	}
}

func (m *Manager) evictExpired() {
	now := time.Now()
	m.cacheMu.Lock()
	for key, entry := range m.cache {
		if now.After(entry.expiresAt) {
			delete(m.cache, key)
		}
	}
	m.cacheMu.Unlock()
}

func cacheKey(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// CreateToken mints a new token under a unique name and returns the plaintext
// value, which is never stored.
func (m *Manager) CreateToken(name, description string, expiresAt *time.Time) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}

	var expiresAtVal interface{}
	if expiresAt != nil {
		expiresAtVal = *expiresAt
	}

	_, err = m.db.Exec(`
		INSERT INTO api_tokens (name, token_hash, description, expires_at)
		VALUES (?, ?, ?, ?)
	`, name, string(hash), description, expiresAtVal)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("token with name '%s' already exists", name)
		}
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	m.logger.Info().Str("name", name).Msg("Created API token")
	return token, nil
}

// VerifyToken returns the token's metadata when valid, nil otherwise.
func (m *Manager) VerifyToken(token string) *TokenInfo {
	if token == "" {
		return nil
	}

	key := cacheKey(token)
	now := time.Now()

	m.cacheMu.RLock()
	entry, ok := m.cache[key]
	m.cacheMu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		m.cacheMu.Lock()
		m.cacheHits++
		m.cacheMu.Unlock()
		return entry.info
	}

	m.cacheMu.Lock()
	m.cacheMisses++
	m.cacheMu.Unlock()

	rows, err := m.db.Query(`
		SELECT id, name, token_hash, description, created_at, last_used_at, expires_at, enabled
		FROM api_tokens WHERE enabled = 1
	`)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to query tokens")
		return nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id          int64
			name        string
			tokenHash   string
			description sql.NullString
			createdAt   time.Time
			lastUsedAt  sql.NullTime
			expiresAt   sql.NullTime
			enabled     bool
		)
		if err := rows.Scan(&id, &name, &tokenHash, &description, &createdAt, &lastUsedAt, &expiresAt, &enabled); err != nil {
			m.logger.Error().Err(err).Msg("Failed to scan token row")
			continue
		}

		if bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
			continue
		}

		if expiresAt.Valid && now.After(expiresAt.Time) {
			m.logger.Warn().Str("name", name).Msg("Token has expired")
			return nil
		}

		// Update last used timestamp (fire and forget)
		go func(tokenID int64) {
			if _, err := m.db.Exec("UPDATE api_tokens SET last_used_at = ? WHERE id = ?", now, tokenID); err != nil {
				m.logger.Error().Err(err).Int64("token_id", tokenID).Msg("Failed to update last_used_at")
			}
		}(id)

		info := &TokenInfo{
			ID:          id,
			Name:        name,
			Description: description.String,
			CreatedAt:   createdAt,
			Enabled:     enabled,
		}
		if lastUsedAt.Valid {
			info.LastUsedAt = lastUsedAt.Time
		}
		if expiresAt.Valid {
			info.ExpiresAt = expiresAt.Time
		}

		m.cacheMu.Lock()
		if len(m.cache) >= m.maxCacheSize {
			// Evict the entry closest to expiry
			var oldestKey string
			var oldestTime time.Time
			for k, v := range m.cache {
				if oldestKey == "" || v.expiresAt.Before(oldestTime) {
					oldestKey = k
					oldestTime = v.expiresAt
				}
			}
			if oldestKey != "" {
				delete(m.cache, oldestKey)
			}
		}
		m.cache[key] = cacheEntry{info: info, expiresAt: now.Add(m.cacheTTL)}
		m.cacheMu.Unlock()

		return info
	}

	m.logger.Debug().Msg("Authentication failed: invalid token")
	return nil
}

// ListTokens returns all tokens without their hashes.
func (m *Manager) ListTokens() ([]TokenInfo, error) {
	rows, err := m.db.Query(`
		SELECT id, name, description, created_at, last_used_at, expires_at, enabled
		FROM api_tokens
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []TokenInfo
	for rows.Next() {
		var (
			id          int64
			name        string
			description sql.NullString
			createdAt   time.Time
			lastUsedAt  sql.NullTime
			expiresAt   sql.NullTime
			enabled     bool
		)
		if err := rows.Scan(&id, &name, &description, &createdAt, &lastUsedAt, &expiresAt, &enabled); err != nil {
			return nil, err
		}
		info := TokenInfo{
			ID:          id,
			Name:        name,
			Description: description.String,
			CreatedAt:   createdAt,
			Enabled:     enabled,
		}
		if lastUsedAt.Valid {
			info.LastUsedAt = lastUsedAt.Time
		}
		if expiresAt.Valid {
			info.ExpiresAt = expiresAt.Time
		}
		tokens = append(tokens, info)
	}
	return tokens, rows.Err()
}

// DeleteToken removes a token by ID.
func (m *Manager) DeleteToken(id int64) error {
	result, err := m.db.Exec("DELETE FROM api_tokens WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.New("token not found")
	}
	m.InvalidateCache()
	m.logger.Info().Int64("token_id", id).Msg("Deleted API token")
	return nil
}

// RevokeToken disables a token without deleting its record.
func (m *Manager) RevokeToken(id int64) error {
	result, err := m.db.Exec("UPDATE api_tokens SET enabled = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.New("token not found")
	}
	m.InvalidateCache()
	m.logger.Info().Int64("token_id", id).Msg("Revoked API token")
	return nil
}

// EnsureInitialToken creates an admin token on first run; it returns the
// plaintext token only when one was created.
func (m *Manager) EnsureInitialToken() (string, error) {
	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM api_tokens").Scan(&count); err != nil {
		return "", err
	}
	if count > 0 {
		return "", nil
	}

	m.logger.Info().Msg("First run detected - creating initial admin token")
	token, err := m.CreateToken("admin", "Initial admin token (auto-generated on first run)", nil)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			// Lost the race against another process
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// InvalidateCache clears the verified-token cache.
func (m *Manager) InvalidateCache() {
	m.cacheMu.Lock()
	cleared := len(m.cache)
	m.cache = make(map[string]cacheEntry)
	m.cacheMu.Unlock()
	m.logger.Info().Int("cleared", cleared).Msg("Token cache invalidated")
}

// CacheStats reports cache effectiveness for the stats endpoint.
func (m *Manager) CacheStats() map[string]interface{} {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	total := m.cacheHits + m.cacheMisses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(m.cacheHits) / float64(total) * 100
	}
	return map[string]interface{}{
		"cache_size":        len(m.cache),
		"max_cache_size":    m.maxCacheSize,
		"cache_ttl_seconds": m.cacheTTL.Seconds(),
		"cache_hits":        m.cacheHits,
		"cache_misses":      m.cacheMisses,
		"hit_rate_percent":  hitRate,
	}
}

// Close stops cache maintenance and closes the database.
func (m *Manager) Close() error {
	close(m.cleanupDone)
	return m.db.Close()
}
