// Package sqlite provides the standalone, file-backed registry used when no
// Postgres DSN is configured.
package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store implements store.UserStore and store.ChatStore on SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewSQLiteStores opens the standalone registry and wraps it as store.Stores.
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	s, err := Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return store.NewStores(s, s, s), nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// translateErr maps driver errors onto store sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if !isConstraintViolation(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "chat_links.target_id"):
		return store.ErrDuplicateLink
	case strings.Contains(msg, "chats.owner_id"):
		return store.ErrDuplicateChat
	case strings.Contains(msg, "users.chat_id"):
		return store.ErrDuplicateUser
	case strings.Contains(msg, "foreign key"):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	return err
}

func isConstraintViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "foreign key constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

var _ store.UserStore = (*Store)(nil)
var _ store.ChatStore = (*Store)(nil)
