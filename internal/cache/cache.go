// Package cache is the SQLite parse cache: serialized front-end results
// keyed by package identity and content hash. It is strictly an
// optimization; a cold, missing or corrupt cache never changes scan results.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kestrelsec/reach/internal/frontend"
)

// Store is the cache's data access layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path with WAL mode enabled.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS results (
  ecosystem   TEXT NOT NULL,
  package     TEXT NOT NULL,
  version     TEXT NOT NULL,
  hash        TEXT NOT NULL,
  payload     BLOB NOT NULL,
  created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (ecosystem, package, version, hash)
);

CREATE TABLE IF NOT EXISTS meta (
  key         TEXT PRIMARY KEY,
  value       TEXT NOT NULL
);
`

// Migrate creates the schema and invalidates every stored result when the
// analyzer version string changed: new grammars or decoders can produce
// different results for identical bytes.
func (s *Store) Migrate(analyzerVersion string) error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'analyzer_version'`).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read cache version: %w", err)
	}
	if stored == analyzerVersion {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM results`); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('analyzer_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		analyzerVersion,
	); err != nil {
		return fmt.Errorf("write cache version: %w", err)
	}
	return nil
}

// Get returns the cached result for a package at a content hash. Any decode
// problem is a miss, never an error surfaced to the scan.
func (s *Store) Get(ecosystem, pkg, version, hash string) (*frontend.Result, bool) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM results WHERE ecosystem = ? AND package = ? AND version = ? AND hash = ?`,
		ecosystem, pkg, version, hash,
	).Scan(&payload)
	if err != nil {
		return nil, false
	}

	var res frontend.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		// Corrupt row: drop it so the slot heals on the next Put.
		s.db.Exec(`DELETE FROM results WHERE ecosystem = ? AND package = ? AND version = ? AND hash = ?`,
			ecosystem, pkg, version, hash)
		return nil, false
	}
	return &res, true
}

// Put stores a front-end result. Write failures are returned but callers
// treat them as non-fatal.
func (s *Store) Put(ecosystem, pkg, version, hash string, res *frontend.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode cached result: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO results (ecosystem, package, version, hash, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ecosystem, package, version, hash) DO UPDATE SET payload = excluded.payload`,
		ecosystem, pkg, version, hash, payload,
	); err != nil {
		return fmt.Errorf("store cached result: %w", err)
	}
	return nil
}

// HashTree computes a content hash over a package's code: every regular
// file's path and bytes, in sorted path order. Path may also name a single
// file (a jar).
func HashTree(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	h := sha256.New()
	if !info.IsDir() {
		if err := hashFile(h, path, filepath.Base(path)); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries simply don't contribute
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	sort.Strings(files)

	for _, f := range files {
		rel, err := filepath.Rel(path, f)
		if err != nil {
			rel = f
		}
		if err := hashFile(h, f, rel); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(h io.Writer, path, label string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	io.WriteString(h, label)
	io.WriteString(h, "\x00")
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	io.WriteString(h, "\x00")
	return nil
}
