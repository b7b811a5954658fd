// Package dbgate is the pre-flight schema compatibility check that runs
// before any database session is opened. It decides whether the on-disk
// database's migration lineage is one this binary recognizes, and applies
// pending migrations only when it is. Unknown lineage is never migrated.
package dbgate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"cabplanner/internal/debug"
	appErrors "cabplanner/internal/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	migrationDir = "migrations"

	// versionTable is goose's bookkeeping table. Its absence means the
	// database predates migration tracking entirely.
	versionTable = "goose_db_version"
)

// Compatibility is the result of one schema pre-flight check.
type Compatibility struct {
	Compatible bool
	Reason     string
	// Revision is the recorded schema revision, or -1 when none was
	// detected (missing file, missing table, empty table).
	Revision int64
}

// Check inspects the database at dbPath without modifying it. A missing
// file is compatible (first run). Every inspection failure reads as
// incompatible: this gate fails closed, never open.
func Check(dbPath string) Compatibility {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return Compatibility{Compatible: true, Reason: "no database yet", Revision: -1}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return incompatible(fmt.Sprintf("cannot open database: %v", err), -1)
	}
	defer func() { _ = db.Close() }()

	hasTable, err := tableExists(db, versionTable)
	if err != nil {
		return incompatible(fmt.Sprintf("cannot inspect database: %v", err), -1)
	}
	if !hasTable {
		return incompatible(
			fmt.Sprintf("database predates migration tracking (no %s table)", versionTable), -1)
	}

	revision, found, err := currentRevision(db)
	if err != nil {
		return incompatible(fmt.Sprintf("cannot read schema version: %v", err), -1)
	}
	if !found {
		return incompatible("no recorded schema version", -1)
	}

	known, err := knownRevisions()
	if err != nil {
		return incompatible(fmt.Sprintf("cannot enumerate migrations: %v", err), revision)
	}
	if !known[revision] {
		return incompatible(
			fmt.Sprintf("schema version %d not recognized by this build", revision), revision)
	}

	return Compatibility{Compatible: true, Revision: revision}
}

// Upgrade re-checks compatibility and then applies all pending migrations.
// An unrecognized schema is refused with an incompatible_database error;
// it is never silently migrated.
func Upgrade(dbPath string) error {
	compat := Check(dbPath)
	if !compat.Compatible {
		return appErrors.New(appErrors.CodeIncompatibleDatabase,
			fmt.Sprintf("database %s: %s", dbPath, compat.Reason), nil)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return appErrors.New(appErrors.CodeIncompatibleDatabase,
			fmt.Sprintf("open database %s", dbPath), err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	goose.SetLogger(gooseLogger{})

	if err := goose.Up(db, migrationDir); err != nil {
		return appErrors.New(appErrors.CodeIncompatibleDatabase,
			fmt.Sprintf("migrate database %s", dbPath), err)
	}

	debug.Logf("database %s migrated, revision was %d", dbPath, compat.Revision)
	return nil
}

func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// currentRevision reads the latest applied revision from the bookkeeping
// table. The boolean is false when the table holds no applied rows at all.
func currentRevision(db *sql.DB) (int64, bool, error) {
	var revision sql.NullInt64
	err := db.QueryRow(
		"SELECT MAX(version_id) FROM " + versionTable + " WHERE is_applied = 1").Scan(&revision)
	if err != nil {
		return 0, false, err
	}
	if !revision.Valid {
		return 0, false, nil
	}
	return revision.Int64, true, nil
}

// knownRevisions enumerates the revisions this binary ships, from the
// embedded migration filenames. Revision 0 is the bookkeeping baseline
// row and is always recognized.
func knownRevisions() (map[int64]bool, error) {
	entries, err := fs.ReadDir(migrationFS, migrationDir)
	if err != nil {
		return nil, err
	}
	known := map[int64]bool{0: true}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			continue
		}
		known[version] = true
	}
	return known, nil
}

func incompatible(reason string, revision int64) Compatibility {
	debug.Logf("database gate: %s", reason)
	return Compatibility{Compatible: false, Reason: reason, Revision: revision}
}

// gooseLogger routes goose output into the debug log instead of stdout.
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...any) { debug.Logf("goose: "+format, v...) }
func (gooseLogger) Printf(format string, v ...any) { debug.Logf("goose: "+format, v...) }
