// Package board persists composition documents to SQLite under
// user-chosen names, so a report layout survives restarts and can be
// shared as a compressed export file.
package board

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Board is a saved composition document plus its bookkeeping.
type Board struct {
	Name      string    `json:"name"`
	Document  []byte    `json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists boards in a local SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (creating if needed) the board database at dbPath.
func NewStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open board database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "board").Logger(),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info().Str("path", dbPath).Msg("Board store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS boards (
			name TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create boards schema: %w", err)
	}
	return nil
}

// Save upserts the document under name.
func (s *Store) Save(name string, document []byte) error {
	if name == "" {
		return fmt.Errorf("board name cannot be empty")
	}
	_, err := s.db.Exec(`
		INSERT INTO boards (name, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP
	`, name, string(document))
	if err != nil {
		return fmt.Errorf("failed to save board %q: %w", name, err)
	}
	s.logger.Debug().Str("name", name).Int("bytes", len(document)).Msg("Board saved")
	return nil
}

// Load returns the document saved under name, or sql.ErrNoRows.
func (s *Store) Load(name string) ([]byte, error) {
	var document string
	err := s.db.QueryRow(`SELECT document FROM boards WHERE name = ?`, name).Scan(&document)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load board %q: %w", name, err)
	}
	return []byte(document), nil
}

// List returns all saved boards, most recently updated first, without
// their documents.
func (s *Store) List() ([]Board, error) {
	rows, err := s.db.Query(`SELECT name, updated_at FROM boards ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	boards := make([]Board, 0)
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.Name, &b.UpdatedAt); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// Delete removes the named board. Deleting a missing board is not an error.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM boards WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete board %q: %w", name, err)
	}
	s.logger.Debug().Str("name", name).Msg("Board deleted")
	return nil
}

// Export returns the named board's document gzip-compressed, for download
// and out-of-band sharing.
func (s *Store) Export(name string) ([]byte, error) {
	document, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(document); err != nil {
		return nil, fmt.Errorf("failed to compress board %q: %w", name, err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress board %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Import decompresses an exported board and saves it under name. The caller
// validates the document before handing it over.
func (s *Store) Import(name string, compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to read board export: %w", err)
	}
	defer gz.Close()
	document, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress board export: %w", err)
	}
	if err := s.Save(name, document); err != nil {
		return nil, err
	}
	return document, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
