package db

import (
	"path/filepath"
	"testing"
)

func TestMigrateUpFromPath_CreatesKVStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")

	if err := MigrateUpFromPath(dbPath); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}

	conn, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var name string
	err = conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv_store'").Scan(&name)
	if err != nil {
		t.Fatalf("kv_store table missing: %v", err)
	}
}

func TestMigrateUpFromPath_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")

	for i := 0; i < 2; i++ {
		if err := MigrateUpFromPath(dbPath); err != nil {
			t.Fatalf("run %d: MigrateUpFromPath() error = %v", i+1, err)
		}
	}

	version, dirty, err := MigrationVersion(dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 false", version, dirty)
	}
}

func TestMigrateDownFromPath_DropsTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "down.db")

	if err := MigrateUpFromPath(dbPath); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}
	if err := MigrateDownFromPath(dbPath, -1); err != nil {
		t.Fatalf("MigrateDownFromPath() error = %v", err)
	}

	conn, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name='kv_store'").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Error("kv_store still exists after rollback")
	}
}
