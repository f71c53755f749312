package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database holding local board state.
type DB struct {
	conn    *sql.DB
	dataDir string // root directory for board assets such as images
}

// New opens (or creates) the SQLite file at dbPath and applies migrations.
func New(dbPath, dataDir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer only, otherwise SQLITE_BUSY under concurrent autosaves.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, dataDir: dataDir}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) DataDir() string {
	return db.dataDir
}

// AssetPath resolves a path relative to the data directory.
func (db *DB) AssetPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(db.dataDir, name)
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS board_state (
			session_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS op_queue (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			op_json TEXT NOT NULL,
			queued_at INTEGER NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_op_queue_session ON op_queue(session_id, position)`,
		`CREATE TABLE IF NOT EXISTS overflow_ops (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			op_json TEXT NOT NULL,
			queued_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_overflow_session ON overflow_ops(session_id)`,
		`CREATE TABLE IF NOT EXISTS history_entries (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			stack TEXT NOT NULL,
			position INTEGER NOT NULL,
			entry_json TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, stack, position)
		)`,
		// Added after the first release.
		`ALTER TABLE board_state ADD COLUMN version INTEGER NOT NULL DEFAULT 0`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			// ALTER TABLE fails once the column exists.
			if strings.Contains(m, "ALTER TABLE") && strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}
