// Package store implements the Content Store (spec §4.1): content
// identity for every artifact, a synchronous document-store write, and a
// best-effort asynchronous write to a content-addressed object store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode = WAL;`
	pragmaForeignKeysOn  = `PRAGMA foreign_keys = ON;`

	documentsTableSchema = `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		hash       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '{}',
		object_cid TEXT NOT NULL DEFAULT '',
		storage    TEXT NOT NULL DEFAULT 'document_store',
		pinned_at  DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (collection, id)
	);`

	eventsTableSchema = `CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		key        TEXT NOT NULL DEFAULT '',
		value      TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);`

	vectorsTableSchema = `CREATE TABLE IF NOT EXISTS vectors (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		vector     TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (collection, id)
	);`
)

// Store is the SQLite-backed document store. It is the synchronous,
// query-side tier of the Content Store; grounded on
// internal/store/store.go's schema-in-constants + modernc.org/sqlite
// idiom (WAL mode, foreign keys on, `_ "modernc.org/sqlite"` blank
// import for driver registration).
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite-backed document store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if _, err := db.Exec(pragmaJournalModeWAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set journal mode: %w", err)
	}
	if _, err := db.Exec(pragmaForeignKeysOn); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set foreign keys: %w", err)
	}
	if _, err := db.Exec(documentsTableSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create documents table: %w", err)
	}
	if _, err := db.Exec(eventsTableSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create events table: %w", err)
	}
	if _, err := db.Exec(vectorsTableSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create vectors table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Document is one row of the document store: a JSON-content document
// identified by (collection, id), plus the content-store bookkeeping
// fields (hash, object_cid, storage).
type Document struct {
	Collection string
	ID         string
	Hash       string
	Content    map[string]any
	ObjectCID  string
	Storage    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Put writes (or replaces) a document. Idempotent on (collection, id) —
// a second Put with the same id overwrites content/hash and bumps
// updated_at, matching the document store's at-least-once, idempotent
// contract (spec §6).
func (s *Store) Put(collection, id string, content map[string]any, hash string) error {
	body, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("store: marshal document content: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO documents (collection, id, hash, content, storage, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'document_store', ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			hash = excluded.hash,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, collection, id, hash, string(body), now, now)
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", collection, id, err)
	}
	return nil
}

// SetObjectCID backfills the object-store identity for a document once
// the asynchronous object-store write completes.
func (s *Store) SetObjectCID(collection, id, cid string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE documents SET object_cid = ?, storage = 'object_store', pinned_at = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`, cid, now, now, collection, id)
	if err != nil {
		return fmt.Errorf("store: backfill object cid for %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get fetches one document by (collection, id). Returns (nil, nil) if absent.
func (s *Store) Get(collection, id string) (*Document, error) {
	row := s.db.QueryRow(`
		SELECT collection, id, hash, content, object_cid, storage, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?
	`, collection, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Find returns up to `limit` documents in a collection whose content
// matches every key/value pair in `filter` (string equality on the
// decoded JSON content; empty filter matches everything), most
// recently updated first. limit <= 0 means unlimited.
//
// Filtering happens in Go rather than via SQLite JSON functions: this
// store's collections (artifacts, blueprints, docs, traces) are
// per-project, not web-scale, so a full-collection scan is simple and
// portable across SQLite builds.
func (s *Store) Find(collection string, filter map[string]string, limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT collection, id, hash, content, object_cid, storage, created_at, updated_at
		FROM documents WHERE collection = ?
		ORDER BY updated_at DESC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan document in %s: %w", collection, err)
		}
		if !matchesFilter(doc.Content, filter) {
			continue
		}
		out = append(out, *doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func matchesFilter(content map[string]any, filter map[string]string) bool {
	for k, v := range filter {
		got, ok := content[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != v {
			return false
		}
	}
	return true
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var d Document
	var content string
	var objectCID sql.NullString
	if err := row.Scan(&d.Collection, &d.ID, &d.Hash, &content, &objectCID, &d.Storage, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ObjectCID = objectCID.String
	if err := json.Unmarshal([]byte(content), &d.Content); err != nil {
		return nil, fmt.Errorf("unmarshal document content: %w", err)
	}
	return &d, nil
}

// Log appends a fire-and-forget event record. A failure here is logged
// by the caller, never surfaced — matching the document store's `log`
// operation in spec §6 and the engine-wide fire-and-forget contract.
func (s *Store) Log(eventType, key, value string) error {
	_, err := s.db.Exec(`INSERT INTO events (event_type, key, value, created_at) VALUES (?, ?, ?, ?)`,
		eventType, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: log event: %w", err)
	}
	return nil
}

// Vector is one row of the vectors table: the embedding (if any) and
// source text for one (collection, id), used by the Embedding Index for
// semantic search and its text-search fallback.
type Vector struct {
	Collection string
	ID         string
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// PutVector writes (or replaces) a vector row. embedding may be nil —
// the row is still useful to the text-search fallback path.
func (s *Store) PutVector(collection, id, text string, embedding []float32) error {
	body, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("store: marshal vector: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO vectors (collection, id, text, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector
	`, collection, id, text, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: put vector %s/%s: %w", collection, id, err)
	}
	return nil
}

// ListVectors returns every vector row in a collection, most recently
// created first (rewriting a row keeps its original created_at).
func (s *Store) ListVectors(collection string) ([]Vector, error) {
	rows, err := s.db.Query(`
		SELECT collection, id, text, vector, created_at
		FROM vectors WHERE collection = ? ORDER BY created_at DESC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("store: list vectors in %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Vector
	for rows.Next() {
		var v Vector
		var body string
		if err := rows.Scan(&v.Collection, &v.ID, &v.Text, &body, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan vector in %s: %w", collection, err)
		}
		if err := json.Unmarshal([]byte(body), &v.Embedding); err != nil {
			return nil, fmt.Errorf("store: unmarshal vector in %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
