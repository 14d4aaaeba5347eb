package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	if err := ValidateDir(dir); err == nil {
		t.Fatal("empty dir should fail validation")
	}

	write("bad_name.sql", "-- +goose Up\n-- +goose Down\n")
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "invalid migration filename") {
		t.Fatalf("expected filename error, got %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "bad_name.sql")); err != nil {
		t.Fatal(err)
	}

	write("20250301120000_missing_down.sql", "-- +goose Up\nselect 1;\n")
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "+goose Down") {
		t.Fatalf("expected missing down error, got %v", err)
	}

	write("20250301120000_duplicate.sql", "-- +goose Up\n-- +goose Down\n")
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate migration version") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Gift Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_gift_notes.sql") {
		t.Fatalf("unexpected sanitized filename %q", path)
	}

	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated skeleton should validate: %v", err)
	}

	if _, err := CreateSQLMigration(dir, ""); err == nil {
		t.Fatal("empty name should be rejected")
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("name sanitizing to empty should be rejected")
	}
}
