package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"muninn/internal/obslog"
)

// SQLiteAdapter is the concrete DatabaseAdapter implementation. It owns a
// single *sql.DB, matching the teacher's single-writer discipline
// (local_core.go: SetMaxOpenConns(1), WAL + busy_timeout pragmas) and the
// spec's §5 statement that the database is the serialization point.
type SQLiteAdapter struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes (creating if needed) the SQLite database at path and
// ensures the full schema (§6) exists.
func Open(path string) (*SQLiteAdapter, error) {
	log := obslog.Get(obslog.CategoryStore)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Sugar().Debugf("pragma %q failed: %v", pragma, err)
		}
	}

	a := &SQLiteAdapter{db: db, dbPath: path}
	if err := createSchema(func(stmt string) error {
		_, err := db.Exec(stmt)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrations: %w", err)
	}

	log.Info("opened knowledge database", zap.String("path", path))
	return a, nil
}

// Close closes the underlying connection.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
