package startup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	appErrors "cabplanner/internal/errors"
)

type fakeEnv struct {
	values map[string]string
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{values: map[string]string{}}
}

func (e *fakeEnv) get(key string) string { return e.values[key] }

func (e *fakeEnv) set(key, value string) error {
	e.values[key] = value
	return nil
}

func testGuard(t *testing.T, now time.Time, env *fakeEnv) *RestartGuard {
	t.Helper()
	guard, err := NewRestartGuard(
		WithClock(func() time.Time { return now }),
		WithMarkerPath(filepath.Join(t.TempDir(), "restart-marker")),
		WithEnv(env.get, env.set),
	)
	if err != nil {
		t.Fatalf("NewRestartGuard() error: %v", err)
	}
	return guard
}

func writeMarker(t *testing.T, guard *RestartGuard, at time.Time) {
	t.Helper()
	data, err := json.Marshal(restartMarker{PID: 1234, Timestamp: at.Format(time.RFC3339)})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(guard.markerPath, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCheckFirstLaunch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	guard := testGuard(t, now, env)

	if err := guard.Check(false); err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	// The guard must be armed for a potential relaunch.
	if env.get(RestartEnvVar) == "" {
		t.Error("restart env flag should be set after Check")
	}
	if _, err := os.Stat(guard.markerPath); err != nil {
		t.Errorf("marker should exist after Check: %v", err)
	}
}

func TestCheckDetectsLoop(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	env.values[RestartEnvVar] = "1"
	guard := testGuard(t, now, env)
	writeMarker(t, guard, now.Add(-30*time.Second))

	err := guard.Check(false)
	if !appErrors.IsCode(err, appErrors.CodeRestartLoop) {
		t.Errorf("error code = %v, want restart_loop", appErrors.CodeOf(err))
	}
}

func TestCheckStaleMarkerIsNotALoop(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	env.values[RestartEnvVar] = "1"
	guard := testGuard(t, now, env)
	writeMarker(t, guard, now.Add(-10*time.Minute))

	if err := guard.Check(false); err != nil {
		t.Fatalf("Check() error on stale marker: %v", err)
	}
}

func TestCheckEnvFlagAloneIsNotALoop(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	env.values[RestartEnvVar] = "1"
	guard := testGuard(t, now, env)
	// No marker file at all.

	if err := guard.Check(false); err != nil {
		t.Fatalf("Check() error without marker: %v", err)
	}
}

func TestCheckMarkerAloneIsNotALoop(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	guard := testGuard(t, now, env)
	writeMarker(t, guard, now.Add(-10*time.Second))

	if err := guard.Check(false); err != nil {
		t.Fatalf("Check() error without env flag: %v", err)
	}
}

func TestCheckForceOverridesLoop(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	env.values[RestartEnvVar] = "1"
	guard := testGuard(t, now, env)
	writeMarker(t, guard, now.Add(-10*time.Second))

	if err := guard.Check(true); err != nil {
		t.Fatalf("Check(force) error: %v", err)
	}
}

func TestCheckCorruptMarkerIgnored(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	env.values[RestartEnvVar] = "1"
	guard := testGuard(t, now, env)
	if err := os.WriteFile(guard.markerPath, []byte("{garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := guard.Check(false); err != nil {
		t.Fatalf("Check() error on corrupt marker: %v", err)
	}
}

func TestCustomLoopWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	env.values[RestartEnvVar] = "1"
	guard := testGuard(t, now, env)
	WithLoopWindow(10 * time.Second)(guard)
	writeMarker(t, guard, now.Add(-30*time.Second))

	// 30s old marker is outside a 10s window.
	if err := guard.Check(false); err != nil {
		t.Fatalf("Check() error outside custom window: %v", err)
	}
}

func TestMarkHealthyClearsMarker(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newFakeEnv()
	guard := testGuard(t, now, env)

	if err := guard.Check(false); err != nil {
		t.Fatal(err)
	}
	guard.MarkHealthy()

	if _, err := os.Stat(guard.markerPath); !os.IsNotExist(err) {
		t.Error("marker should be removed after MarkHealthy")
	}
}
