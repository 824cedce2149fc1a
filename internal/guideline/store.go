package guideline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brandalign/engine/pkg/types"
)

// ErrNotFound is returned by Get when no guideline has the requested id.
var ErrNotFound = errors.New("guideline not found")

// Store is a SQLite-backed store for extracted guidelines. Guidelines are
// written once at ingestion and read many times across asset evaluations.
type Store struct {
	db *sql.DB
}

// NewStore creates the guidelines table if it doesn't exist, then returns a
// Store backed by the provided *sql.DB.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS guidelines (
			guideline_id TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			file_uri     TEXT NOT NULL,
			document     TEXT NOT NULL,
			created_at   INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create guidelines table: %w", err)
	}

	return &Store{db: db}, nil
}

// Open opens (or creates) a guideline store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Put inserts or replaces a guideline.
func (s *Store) Put(g *types.Guideline) error {
	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal guideline %s: %w", g.GuidelineID, err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO guidelines (guideline_id, name, file_uri, document, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		g.GuidelineID, g.Name, g.FileURI, string(doc), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store guideline %s: %w", g.GuidelineID, err)
	}
	return nil
}

// Get returns the guideline with the given id, or ErrNotFound.
func (s *Store) Get(guidelineID string) (*types.Guideline, error) {
	var doc string
	err := s.db.QueryRow(
		`SELECT document FROM guidelines WHERE guideline_id = ?`, guidelineID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load guideline %s: %w", guidelineID, err)
	}

	var g types.Guideline
	if err := json.Unmarshal([]byte(doc), &g); err != nil {
		return nil, fmt.Errorf("decode guideline %s: %w", guidelineID, err)
	}
	return &g, nil
}

// List returns all stored guidelines in insertion order.
func (s *Store) List() ([]types.Guideline, error) {
	rows, err := s.db.Query(`SELECT document FROM guidelines ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list guidelines: %w", err)
	}
	defer rows.Close()

	var out []types.Guideline
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan guideline row: %w", err)
		}
		var g types.Guideline
		if err := json.Unmarshal([]byte(doc), &g); err != nil {
			return nil, fmt.Errorf("decode guideline row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
