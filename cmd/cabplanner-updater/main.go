// Command cabplanner-updater is the external install helper. The main
// application starts it detached when the OS locks a running executable
// against overwrite, then exits. The helper waits out the parent, swaps
// the binary, relaunches the application and verifies it stayed alive,
// rolling back to the backup if it did not.
//
// Usage: cabplanner-updater <currentExe> <newExe> <backupPath>
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"cabplanner/internal/debug"
)

const (
	// parentWaitTimeout bounds how long we wait for the parent to exit.
	parentWaitTimeout = 30 * time.Second

	// healthCheckDelay is how long the relaunched application must stay
	// alive before the update counts as successful.
	healthCheckDelay = 5 * time.Second

	// successMarkerName is written next to the executable after a
	// verified swap, so the application can show a "what's new" note.
	successMarkerName = ".update_success"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: cabplanner-updater <currentExe> <newExe> <backupPath>")
		return 2
	}
	currentExe, newExe, backupPath := args[0], args[1], args[2]

	if err := debug.Init(os.Getenv("CAB_DEBUG") != ""); err == nil {
		defer debug.Close()
	}
	debug.Logf("updater: current=%s new=%s backup=%s", currentExe, newExe, backupPath)

	parentPID := os.Getppid()
	if err := waitForExit(parentPID, parentWaitTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "updater: parent did not exit: %v\n", err)
		return 1
	}
	debug.Logf("updater: parent pid %d exited", parentPID)

	if err := swap(currentExe, newExe, backupPath); err != nil {
		fmt.Fprintf(os.Stderr, "updater: %v\n", err)
		return 1
	}

	if err := relaunchAndVerify(currentExe, backupPath); err != nil {
		fmt.Fprintf(os.Stderr, "updater: %v\n", err)
		return 1
	}

	finish(currentExe, newExe, backupPath)
	return 0
}

// swap backs up the current executable and moves the new one into place.
// Any failure after the backup restores it before returning.
func swap(currentExe, newExe, backupPath string) error {
	debug.Log("updater: backing up")
	if err := os.Rename(currentExe, backupPath); err != nil {
		return fmt.Errorf("back up current executable: %w", err)
	}

	debug.Log("updater: swapping")
	if err := moveFile(newExe, currentExe); err != nil {
		_ = os.Rename(backupPath, currentExe)
		return fmt.Errorf("install new executable: %w", err)
	}
	if err := os.Chmod(currentExe, 0o755); err != nil {
		_ = os.Remove(currentExe)
		_ = os.Rename(backupPath, currentExe)
		return fmt.Errorf("set executable permission: %w", err)
	}
	return nil
}

// relaunchAndVerify starts the updated application and checks it survives
// its first seconds. A binary that dies immediately is rolled back so the
// user is never left with a broken install.
func relaunchAndVerify(currentExe, backupPath string) error {
	debug.Log("updater: relaunching")
	cmd := exec.Command(currentExe)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		rollback(currentExe, backupPath)
		return fmt.Errorf("relaunch updated executable: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	time.Sleep(healthCheckDelay)
	if !processAlive(pid) {
		debug.Logf("updater: relaunched pid %d died, rolling back", pid)
		rollback(currentExe, backupPath)
		return fmt.Errorf("updated executable exited during health check")
	}

	debug.Logf("updater: relaunched pid %d healthy", pid)
	return nil
}

// rollback restores the backup and relaunches the old version so the user
// is not left without a working application.
func rollback(currentExe, backupPath string) {
	_ = os.Remove(currentExe)
	if err := os.Rename(backupPath, currentExe); err != nil {
		debug.Logf("updater: rollback failed: %v", err)
		return
	}
	cmd := exec.Command(currentExe)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err == nil {
		_ = cmd.Process.Release()
	}
}

// finish writes the success marker and removes the backup and the staging
// directory. Everything here is best-effort; the update itself is done.
func finish(currentExe, newExe, backupPath string) {
	marker := filepath.Join(filepath.Dir(currentExe), successMarkerName)
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o600); err != nil {
		debug.Logf("updater: write success marker: %v", err)
	}
	_ = os.Remove(backupPath)

	// The staging directory is the temp tree the new executable was
	// extracted into; it is no longer needed.
	stagingRoot := filepath.Dir(filepath.Dir(newExe))
	if stagingRoot != filepath.Dir(currentExe) {
		_ = os.RemoveAll(stagingRoot)
	}
	debug.Log("updater: done")
}

// waitForExit polls until the process with the given pid is gone.
func waitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("pid %d still running after %s", pid, timeout)
}

// moveFile renames src to dst, falling back to a copy when they live on
// different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
