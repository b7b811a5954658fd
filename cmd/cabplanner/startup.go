package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cabplanner/internal/config"
	"cabplanner/internal/dbgate"
	"cabplanner/internal/debug"
	"cabplanner/internal/update"
)

// successMarkerName is the file the install helper leaves next to the
// executable after a completed swap. It must match the helper binary.
const successMarkerName = ".update_success"

// ensureDatabase runs the schema compatibility gate and migrates the
// database. On an unrecognized schema the user chooses between deleting
// the database and aborting; declining terminates startup.
func ensureDatabase(dbPath string, in io.Reader, out io.Writer) error {
	compat := dbgate.Check(dbPath)
	if !compat.Compatible {
		if !promptDeleteDatabase(in, out, dbPath, compat.Reason) {
			return fmt.Errorf("database at %s is incompatible: %s", dbPath, compat.Reason)
		}
		if err := os.Remove(dbPath); err != nil {
			return fmt.Errorf("delete incompatible database: %w", err)
		}
		debug.Logf("deleted incompatible database %s (%s)", dbPath, compat.Reason)
	}
	return dbgate.Upgrade(dbPath)
}

// promptDeleteDatabase asks the explicit delete-or-abort question. Only
// a literal yes answer deletes; anything else, including EOF, aborts.
func promptDeleteDatabase(in io.Reader, out io.Writer, dbPath, reason string) bool {
	fmt.Fprintf(out, "The database at %s cannot be used by this version:\n  %s\n", dbPath, reason)
	fmt.Fprint(out, "Delete it and start fresh? All existing data will be lost. [yes/no]: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "yes" || answer == "y"
}

// consumeUpdateNotice reports whether the previous launch finished an
// update, printing a one-time notice and clearing the marker the install
// helper left behind.
func consumeUpdateNotice(exeDir string, out io.Writer) {
	marker := filepath.Join(exeDir, successMarkerName)
	if _, err := os.Stat(marker); err != nil {
		return
	}
	fmt.Fprintf(out, "Cabplanner was updated to %s.\n", Version)
	if err := os.Remove(marker); err != nil {
		debug.Logf("remove update marker %s: %v", marker, err)
	}
}

// updateCheckDue reads the auto-update settings and decides whether this
// launch should check for updates. A manual request always checks, even
// when automatic checks are disabled.
func updateCheckDue(now time.Time, manual bool) bool {
	if manual {
		return true
	}
	return update.ShouldCheck(
		now,
		config.GetString(config.KeyLastUpdateCheck),
		update.ParseFrequency(config.GetString(config.KeyAutoUpdateFrequency)),
		config.GetBool(config.KeyAutoUpdateEnabled),
		update.IsDevVersion(Version),
	)
}
