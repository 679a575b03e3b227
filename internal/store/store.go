// Package store persists code graph snapshots in SQLite: entity tables, an
// edges table, an FTS5 index over chunk text and embedding BLOBs for vector
// search.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection for one code graph database.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// Open opens a SQLite database at the given path, creating the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// A single conn keeps the in-memory database alive across calls.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction. The
// callback receives a transaction-scoped Store; the receiver's q field is
// never mutated, so concurrent read-only callers are unaffected.
func (s *Store) WithTransaction(fn func(txStore *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repos (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		remote_url TEXT DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		commit_hash TEXT DEFAULT '',
		status TEXT NOT NULL,
		lang_profile TEXT DEFAULT '{}',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		language TEXT NOT NULL,
		hash TEXT DEFAULT '',
		loc INTEGER DEFAULT 0,
		is_test INTEGER DEFAULT 0,
		tags TEXT DEFAULT '[]',
		UNIQUE(snapshot_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_files_snapshot ON files(snapshot_id);

	CREATE TABLE IF NOT EXISTS symbols (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		qual_name TEXT NOT NULL,
		signature TEXT DEFAULT '',
		start_line INTEGER DEFAULT 0,
		end_line INTEGER DEFAULT 0,
		meta TEXT DEFAULT '{}',
		UNIQUE(file_id, qual_name)
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(snapshot_id, name);
	CREATE INDEX IF NOT EXISTS idx_symbols_qual ON symbols(snapshot_id, qual_name);

	CREATE TABLE IF NOT EXISTS imports (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		module TEXT NOT NULL,
		names TEXT DEFAULT '[]',
		alias TEXT DEFAULT '',
		relative_depth INTEGER DEFAULT 0,
		line INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);

	CREATE TABLE IF NOT EXISTS call_sites (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		caller_symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		callee_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		line INTEGER DEFAULT 0,
		resolved INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_calls_caller ON call_sites(caller_symbol_id);
	CREATE INDEX IF NOT EXISTS idx_calls_unresolved ON call_sites(snapshot_id, resolved);

	CREATE TABLE IF NOT EXISTS type_annotations (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		type_name TEXT NOT NULL,
		category TEXT NOT NULL,
		optional INTEGER DEFAULT 0,
		is_array INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_types_snapshot ON type_annotations(snapshot_id, category);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		parent_chunk_id TEXT DEFAULT '',
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		start_line INTEGER DEFAULT 0,
		end_line INTEGER DEFAULT 0,
		has_imports INTEGER DEFAULT 0,
		has_docstring INTEGER DEFAULT 0,
		embedding BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_snapshot ON chunks(snapshot_id, type);
	CREATE INDEX IF NOT EXISTS idx_chunks_symbol ON chunks(symbol_id);

	CREATE TABLE IF NOT EXISTS endpoints (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		symbol_id TEXT DEFAULT '',
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		tags TEXT DEFAULT '[]',
		framework TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_endpoints_snapshot ON endpoints(snapshot_id);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		module TEXT DEFAULT '',
		UNIQUE(source_id, target_id, type, module)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, type);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, type);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content,
		symbol_name,
		signature,
		file_path,
		chunk_id UNINDEXED,
		snapshot_id UNINDEXED
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func marshalJSON(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON[T any](data string) T {
	var v T
	if data != "" {
		_ = json.Unmarshal([]byte(data), &v)
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Now returns the current time in ISO 8601 format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
