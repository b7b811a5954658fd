// Package startup holds the safety checks that run before the main window:
// restart-loop detection and the single-instance lock.
package startup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cabplanner/internal/debug"
	appErrors "cabplanner/internal/errors"
)

const (
	// RestartEnvVar marks a process as a child of a self-update relaunch.
	// It travels to the child through the inherited environment.
	RestartEnvVar = "CABPLANNER_RESTARTING"

	// markerFileName is the restart marker written next to the config.
	markerFileName = "restart-marker"

	// DefaultLoopWindow is how recent a previous restart must be for a new
	// one to count as part of a loop.
	DefaultLoopWindow = 2 * time.Minute
)

// restartMarker is the on-disk record of the last restart attempt.
type restartMarker struct {
	PID       int    `json:"pid"`
	Timestamp string `json:"timestamp"`
}

// RestartGuard detects crash-restart loops after self-update. A loop is
// declared only when both signals agree: the inherited environment flag
// says this process was relaunched, and the marker file says another
// relaunch happened within the loop window.
type RestartGuard struct {
	window     time.Duration
	now        func() time.Time
	markerPath string
	getenv     func(string) string
	setenv     func(string, string) error
}

// GuardOption configures a RestartGuard.
type GuardOption func(*RestartGuard)

// WithLoopWindow overrides the loop detection window.
func WithLoopWindow(window time.Duration) GuardOption {
	return func(g *RestartGuard) {
		g.window = window
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) GuardOption {
	return func(g *RestartGuard) {
		g.now = now
	}
}

// WithMarkerPath overrides the marker file location, for tests.
func WithMarkerPath(path string) GuardOption {
	return func(g *RestartGuard) {
		g.markerPath = path
	}
}

// WithEnv overrides environment access, for tests.
func WithEnv(getenv func(string) string, setenv func(string, string) error) GuardOption {
	return func(g *RestartGuard) {
		g.getenv = getenv
		g.setenv = setenv
	}
}

// NewRestartGuard creates a guard with the default window and marker path.
func NewRestartGuard(opts ...GuardOption) (*RestartGuard, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determine user home: %w", err)
	}
	g := &RestartGuard{
		window:     DefaultLoopWindow,
		now:        time.Now,
		markerPath: filepath.Join(home, debug.LogDirName, markerFileName),
		getenv:     os.Getenv,
		setenv:     os.Setenv,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check runs loop detection and arms the guard for this process. With
// force true, detection is skipped, stale state is cleared and the guard
// is re-armed, so one flag always recovers a wedged install.
//
// A restart_loop error from Check means the process must not continue
// into normal startup.
func (g *RestartGuard) Check(force bool) error {
	if force {
		debug.Log("restart guard: forced, clearing restart state")
		g.clearMarker()
		g.arm()
		return nil
	}

	if g.getenv(RestartEnvVar) != "" {
		if marker, ok := g.readMarker(); ok {
			age := g.now().Sub(marker)
			if age >= 0 && age < g.window {
				debug.Logf("restart guard: loop detected, marker age %s", age)
				return appErrors.New(appErrors.CodeRestartLoop,
					fmt.Sprintf("restarted twice within %s; run with --force-restart to override", g.window), nil)
			}
			debug.Logf("restart guard: stale marker (age %s), ignoring", age)
		}
	}

	g.arm()
	return nil
}

// MarkHealthy removes the restart marker. Call it once startup has
// completed, so a later crash is not mistaken for a restart loop.
func (g *RestartGuard) MarkHealthy() {
	g.clearMarker()
}

// arm writes a fresh marker and sets the environment flag so any child we
// relaunch sees both signals. Failure to write the marker is logged but
// never fatal: a broken guard must not block the application.
func (g *RestartGuard) arm() {
	if err := g.setenv(RestartEnvVar, "1"); err != nil {
		debug.Logf("restart guard: set %s: %v", RestartEnvVar, err)
	}
	if err := g.writeMarker(); err != nil {
		debug.Logf("restart guard: write marker: %v", err)
	}
}

func (g *RestartGuard) writeMarker() error {
	if err := os.MkdirAll(filepath.Dir(g.markerPath), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(restartMarker{
		PID:       os.Getpid(),
		Timestamp: g.now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(g.markerPath, data, 0o600)
}

// readMarker loads the marker timestamp. A missing or corrupt marker
// reads as absent: corruption must never trap the user in a fatal error.
func (g *RestartGuard) readMarker() (time.Time, bool) {
	data, err := os.ReadFile(g.markerPath)
	if err != nil {
		return time.Time{}, false
	}
	var marker restartMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		debug.Logf("restart guard: corrupt marker: %v", err)
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, marker.Timestamp)
	if err != nil {
		debug.Logf("restart guard: bad marker timestamp %q: %v", marker.Timestamp, err)
		return time.Time{}, false
	}
	return ts, true
}

func (g *RestartGuard) clearMarker() {
	if err := os.Remove(g.markerPath); err != nil && !os.IsNotExist(err) {
		debug.Logf("restart guard: remove marker: %v", err)
	}
}
