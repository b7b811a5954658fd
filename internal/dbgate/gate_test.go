package dbgate

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	appErrors "cabplanner/internal/errors"
)

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func execAll(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func TestCheckNoDatabase(t *testing.T) {
	compat := Check(filepath.Join(t.TempDir(), "missing.db"))
	if !compat.Compatible {
		t.Errorf("missing database should be compatible, got reason %q", compat.Reason)
	}
	if !strings.Contains(compat.Reason, "no database yet") {
		t.Errorf("reason = %q, want mention of no database yet", compat.Reason)
	}
	if compat.Revision != -1 {
		t.Errorf("Revision = %d, want -1", compat.Revision)
	}
}

func TestCheckPredatesMigrationTracking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db := openTestDB(t, path)
	execAll(t, db, "CREATE TABLE projects (id INTEGER PRIMARY KEY)")

	compat := Check(path)
	if compat.Compatible {
		t.Fatal("database without the bookkeeping table should be incompatible")
	}
	if !strings.Contains(compat.Reason, versionTable) {
		t.Errorf("reason = %q, want mention of %s", compat.Reason, versionTable)
	}
}

func TestCheckNoRecordedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty-tracking.db")
	db := openTestDB(t, path)
	execAll(t, db,
		"CREATE TABLE goose_db_version (id INTEGER PRIMARY KEY, version_id INTEGER NOT NULL, is_applied INTEGER NOT NULL, tstamp TIMESTAMP)")

	compat := Check(path)
	if compat.Compatible {
		t.Fatal("database with an empty bookkeeping table should be incompatible")
	}
	if !strings.Contains(compat.Reason, "no recorded schema version") {
		t.Errorf("reason = %q, want mention of no recorded schema version", compat.Reason)
	}
}

func TestCheckUnrecognizedRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	db := openTestDB(t, path)
	execAll(t, db,
		"CREATE TABLE goose_db_version (id INTEGER PRIMARY KEY, version_id INTEGER NOT NULL, is_applied INTEGER NOT NULL, tstamp TIMESTAMP)",
		"INSERT INTO goose_db_version (version_id, is_applied) VALUES (0, 1), (999, 1)")

	compat := Check(path)
	if compat.Compatible {
		t.Fatal("database from a newer build should be incompatible")
	}
	if !strings.Contains(compat.Reason, "not recognized") {
		t.Errorf("reason = %q, want mention of not recognized", compat.Reason)
	}
	if compat.Revision != 999 {
		t.Errorf("Revision = %d, want 999", compat.Revision)
	}
}

func TestCheckRecognizedRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.db")
	db := openTestDB(t, path)
	execAll(t, db,
		"CREATE TABLE goose_db_version (id INTEGER PRIMARY KEY, version_id INTEGER NOT NULL, is_applied INTEGER NOT NULL, tstamp TIMESTAMP)",
		"INSERT INTO goose_db_version (version_id, is_applied) VALUES (0, 1), (1, 1)")

	compat := Check(path)
	if !compat.Compatible {
		t.Fatalf("revision 1 should be recognized, got reason %q", compat.Reason)
	}
	if compat.Revision != 1 {
		t.Errorf("Revision = %d, want 1", compat.Revision)
	}
}

func TestUpgradeFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	if err := Upgrade(path); err != nil {
		t.Fatalf("Upgrade() error: %v", err)
	}

	// All migrations applied: cabinet_colors exists, accessories has no
	// sku or unit column any more.
	db := openTestDB(t, path)
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'cabinet_colors'").Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("cabinet_colors table should exist after upgrade")
	}

	rows, err := db.Query("SELECT name FROM pragma_table_info('accessories')")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		if name == "sku" || name == "unit" {
			t.Errorf("accessories still has dropped column %q", name)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}

	compat := Check(path)
	if !compat.Compatible {
		t.Errorf("freshly migrated database should be compatible, got %q", compat.Reason)
	}
}

func TestUpgradeIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	if err := Upgrade(path); err != nil {
		t.Fatalf("first Upgrade() error: %v", err)
	}
	if err := Upgrade(path); err != nil {
		t.Fatalf("second Upgrade() error: %v", err)
	}
}

func TestUpgradeRefusesUnrecognizedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.db")
	db := openTestDB(t, path)
	execAll(t, db, "CREATE TABLE something_else (id INTEGER PRIMARY KEY)")

	err := Upgrade(path)
	if !appErrors.IsCode(err, appErrors.CodeIncompatibleDatabase) {
		t.Errorf("error code = %v, want incompatible_database", appErrors.CodeOf(err))
	}
}

func TestKnownRevisions(t *testing.T) {
	known, err := knownRevisions()
	if err != nil {
		t.Fatalf("knownRevisions() error: %v", err)
	}
	for _, want := range []int64{0, 1, 2, 3, 4} {
		if !known[want] {
			t.Errorf("revision %d should be known", want)
		}
	}
	if known[5] {
		t.Error("revision 5 should not be known")
	}
}
