package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setVersion(t *testing.T, db *sql.DB, version uint, dirty bool) {
	t.Helper()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty BOOLEAN NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestCheckSchema_FreshDatabaseNeedsMigration(t *testing.T) {
	s, err := CheckSchema(context.Background(), openTestDB(t))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !s.NeedsMigration || s.Compatible {
		t.Fatalf("expected migration needed, got %+v", s)
	}
	if !errors.Is(s.Err(), ErrSchemaOutdated) {
		t.Fatalf("expected ErrSchemaOutdated, got %v", s.Err())
	}
}

func TestCheckSchema_States(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		want    error
	}{
		{"current", RequiredSchemaVersion, false, nil},
		{"ahead", RequiredSchemaVersion + 1, false, ErrSchemaAhead},
		{"dirty", RequiredSchemaVersion, true, ErrSchemaDirty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			setVersion(t, db, tt.version, tt.dirty)
			s, err := CheckSchema(context.Background(), db)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if !errors.Is(s.Err(), tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, s.Err())
			}
			if tt.want != nil && FormatError(s) == "" {
				t.Fatal("expected a user-facing message")
			}
		})
	}
}

func TestFormatError_DirtySuggestsForce(t *testing.T) {
	msg := FormatError(&SchemaStatus{CurrentVersion: 1, RequiredVersion: 1, Dirty: true})
	if !strings.Contains(msg, "subgate migrate force 0") {
		t.Fatalf("expected force hint, got %q", msg)
	}
}
