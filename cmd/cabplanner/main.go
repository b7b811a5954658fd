package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cabplanner/internal/config"
	"cabplanner/internal/debug"
	"cabplanner/internal/startup"
	"cabplanner/internal/ui"
	"cabplanner/internal/update"
)

func main() {
	os.Exit(run())
}

// run keeps all deferred cleanup ahead of the final os.Exit.
func run() int {
	versionFlag := flag.Bool("version", false, "Print version information and exit")
	debugFlag := flag.Bool("debug", false, "Enable debug logging to ~/.cabplanner/debug.log")
	forceRestartFlag := flag.Bool("force-restart", false, "Skip restart-loop detection and clear restart state")
	checkUpdatesFlag := flag.Bool("check-updates", false, "Check for updates now, regardless of schedule")
	dbPathFlag := flag.String("db-path", "", "Path to the cabplanner database file")
	flag.Parse()

	if *versionFlag {
		printVersion()
		return 0
	}

	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		return 1
	}
	if *dbPathFlag != "" {
		if err := config.ApplyOverrides(map[string]any{config.KeyDatabasePath: *dbPathFlag}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if err := debug.Init(*debugFlag || config.GetBool(config.KeyDebug)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug logging unavailable: %v\n", err)
	}
	defer debug.Close()
	debug.Logf("cabplanner %s starting, args=%v", Version, os.Args[1:])

	lock, acquired, err := startup.AcquireInstanceLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !acquired {
		fmt.Fprintln(os.Stderr, "Cabplanner is already running.")
		return 1
	}
	defer lock.Release()

	guard, err := startup.NewRestartGuard()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := guard.Check(*forceRestartFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	dbPath, err := config.DatabasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := ensureDatabase(dbPath, os.Stdin, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Startup is healthy once the database gate passes; a later crash must
	// not look like a restart loop.
	guard.MarkHealthy()

	if exe, err := os.Executable(); err == nil {
		consumeUpdateNotice(filepath.Dir(exe), os.Stdout)
	}

	if updateCheckDue(time.Now(), *checkUpdatesFlag) {
		if code, done := runUpdateFlow(); done {
			return code
		}
	}

	fmt.Println("Cabplanner ready.")
	return 0
}

// runUpdateFlow runs the interactive update dialog. It returns done=true
// when the process should exit instead of continuing into the main window,
// which happens only after a successful install (the updated binary is
// relaunching).
func runUpdateFlow() (int, bool) {
	checker := update.NewChecker(update.DefaultRepoOwner, update.DefaultRepoName)
	coord := update.NewCoordinator(Version)
	orch := update.NewOrchestrator(Version, checker, coord)

	dialog := ui.NewDialog(orch, Version)
	if _, err := tea.NewProgram(dialog).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: update dialog: %v\n", err)
		return 1, true
	}

	if err := config.SaveLastCheck(time.Now()); err != nil {
		debug.Logf("persist last update check: %v", err)
	}

	switch dialog.Outcome() {
	case ui.OutcomeUpdated:
		debug.Log("update installed, exiting for relaunch")
		return 0, true
	case ui.OutcomeFailed:
		debug.Log("update flow ended with a failure, continuing into the app")
	}
	return 0, false
}
