package update

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	appErrors "cabplanner/internal/errors"

	"cabplanner/internal/debug"
)

// PlanKind selects how the binary swap is performed.
type PlanKind int

const (
	// PlanInProcess renames the running executable aside and moves the
	// new one into place from within this process.
	PlanInProcess PlanKind = iota
	// PlanExternalHelper hands the swap to a detached helper process,
	// for platforms that lock a running executable against overwrite.
	PlanExternalHelper
)

// String returns a short label for logging.
func (k PlanKind) String() string {
	if k == PlanExternalHelper {
		return "external-helper"
	}
	return "in-process"
}

// InstallPlan describes one binary swap. It is built once per update
// attempt and consumed exactly once by Execute.
type InstallPlan struct {
	Kind        PlanKind
	ExecPath    string
	NewExecPath string
	BackupPath  string
	HelperPath  string   // external-helper plans only
	HelperArgs  []string // positional: currentExe newExe backupPath
}

// Install phases. Once the swap begins there is no way back to staged;
// failures from backing-up or swapping roll back from the backup.
type installPhase int

const (
	phaseStaged installPhase = iota
	phaseBackingUp
	phaseSwapping
	phaseRelaunching
	phaseDone
	phaseFailed
)

func (p installPhase) String() string {
	switch p {
	case phaseBackingUp:
		return "backing-up"
	case phaseSwapping:
		return "swapping"
	case phaseRelaunching:
		return "relaunching"
	case phaseDone:
		return "done"
	case phaseFailed:
		return "failed"
	default:
		return "staged"
	}
}

// HelperName is the file name of the external install helper, expected
// next to the application executable.
const HelperName = "cabplanner-updater"

// packagedDatabaseName is removed from staged packages so an update never
// overwrites the user's data with a bundled empty database.
const packagedDatabaseName = "cabplanner.db"

// Coordinator locates the running executable, stages the new one and
// performs the swap.
type Coordinator struct {
	version    string
	relaunch   bool
	executable func() (string, error)
	canReplace func() bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRelaunch controls whether the in-process installer re-executes the
// application after a successful swap. Defaults to true.
func WithRelaunch(relaunch bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.relaunch = relaunch
	}
}

// WithExecutableFunc overrides running-executable discovery, for tests.
func WithExecutableFunc(fn func() (string, error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.executable = fn
	}
}

// WithReplaceProbe overrides the platform capability probe, for tests.
func WithReplaceProbe(fn func() bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.canReplace = fn
	}
}

// NewCoordinator creates an install coordinator for the given build version.
func NewCoordinator(version string, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		version:    version,
		relaunch:   true,
		executable: os.Executable,
		canReplace: canReplaceRunningExecutable,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// canReplaceRunningExecutable reports whether the OS allows renaming the
// executable of a live process. Windows holds a mandatory lock on it.
func canReplaceRunningExecutable() bool {
	return runtime.GOOS != "windows"
}

// IsDevVersion reports whether version identifies a development build.
func IsDevVersion(version string) bool {
	return version == "" || version == "dev" || version == "development"
}

// LocateExecutable resolves the running executable path. Development runs
// are refused outright: self-update must never touch a dev checkout.
func (c *Coordinator) LocateExecutable() (string, error) {
	if IsDevVersion(c.version) {
		return "", appErrors.New(appErrors.CodeNotFrozen,
			"self-update requires a packaged build", nil)
	}

	execPath, err := c.executable()
	if err != nil {
		return "", fmt.Errorf("get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}

	// go run and test binaries live under the temp dir.
	if tmp, err := filepath.EvalSymlinks(os.TempDir()); err == nil {
		if strings.HasPrefix(execPath, tmp+string(filepath.Separator)) {
			return "", appErrors.New(appErrors.CodeNotFrozen,
				"refusing to self-update a temporary executable", nil)
		}
	}

	return execPath, nil
}

// BuildPlan locates the new binary under newFilesDir and decides how the
// swap will happen. The staged package is scrubbed of any bundled database
// so user data survives the update.
func (c *Coordinator) BuildPlan(newFilesDir string) (*InstallPlan, error) {
	execPath, err := c.LocateExecutable()
	if err != nil {
		return nil, err
	}

	newExec, err := FindExecutable(newFilesDir, filepath.Base(execPath))
	if err != nil {
		return nil, err
	}

	if packaged := filepath.Join(filepath.Dir(newExec), packagedDatabaseName); fileExists(packaged) {
		debug.Logf("removing packaged database %s to preserve user data", packaged)
		_ = os.Remove(packaged)
	}

	plan := &InstallPlan{
		ExecPath:    execPath,
		NewExecPath: newExec,
		BackupPath:  execPath + ".bak",
	}

	if c.canReplace() {
		plan.Kind = PlanInProcess
		return plan, nil
	}

	plan.Kind = PlanExternalHelper
	plan.HelperPath = filepath.Join(filepath.Dir(execPath), helperFileName())
	if !fileExists(plan.HelperPath) {
		return nil, appErrors.New(appErrors.CodeScriptFailed,
			fmt.Sprintf("install helper not found at %s", plan.HelperPath), nil)
	}
	plan.HelperArgs = []string{plan.ExecPath, plan.NewExecPath, plan.BackupPath}
	return plan, nil
}

// Execute performs the swap described by plan. This is the single
// non-cancellable critical section of the pipeline: once swapping begins
// the only exits are done or rolled-back failure.
func (c *Coordinator) Execute(plan *InstallPlan) error {
	debug.Logf("executing %s install plan for %s", plan.Kind, plan.ExecPath)
	if plan.Kind == PlanExternalHelper {
		return c.launchHelper(plan)
	}
	return c.swapInProcess(plan)
}

// swapInProcess backs up the current executable, moves the new one into
// place and relaunches. Any failure after backing up restores the backup
// before returning.
func (c *Coordinator) swapInProcess(plan *InstallPlan) error {
	debug.Logf("install phase: %s", phaseBackingUp)
	if err := os.Rename(plan.ExecPath, plan.BackupPath); err != nil {
		return swapFailed("back up current executable", err)
	}

	debug.Logf("install phase: %s", phaseSwapping)
	if err := moveFile(plan.NewExecPath, plan.ExecPath); err != nil {
		_ = os.Rename(plan.BackupPath, plan.ExecPath)
		return swapFailed("install new executable", err)
	}
	if err := os.Chmod(plan.ExecPath, 0o755); err != nil {
		_ = os.Remove(plan.ExecPath)
		_ = os.Rename(plan.BackupPath, plan.ExecPath)
		return swapFailed("set executable permission", err)
	}

	if c.relaunch {
		debug.Logf("install phase: %s", phaseRelaunching)
		if err := Restart(plan.ExecPath); err != nil {
			// The swap itself succeeded; do not roll back a working install.
			return swapFailed("relaunch updated executable", err)
		}
	}

	debug.Logf("install phase: %s", phaseDone)
	return nil
}

func swapFailed(msg string, err error) error {
	debug.Logf("install phase: %s (%s: %v)", phaseFailed, msg, err)
	return appErrors.New(appErrors.CodeScriptFailed, msg, err)
}

// launchHelper starts the external helper detached and returns without
// waiting: the helper outlives this process by design and performs
// backup, swap, relaunch and cleanup after we exit.
func (c *Coordinator) launchHelper(plan *InstallPlan) error {
	cmd := exec.Command(plan.HelperPath, plan.HelperArgs...)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return appErrors.New(appErrors.CodeScriptFailed, "launch install helper", err)
	}
	debug.Logf("started install helper pid=%d", cmd.Process.Pid)
	// Detach: the helper must keep running after this process exits.
	_ = cmd.Process.Release()
	return nil
}

// Restart starts a fresh copy of execPath with the same arguments and
// environment. The restart-loop flag set at startup travels to the child
// through the inherited environment.
func Restart(execPath string) error {
	cmd := exec.Command(execPath, os.Args[1:]...)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", execPath, err)
	}
	_ = cmd.Process.Release()
	return nil
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

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func helperFileName() string {
	if runtime.GOOS == "windows" {
		return HelperName + ".exe"
	}
	return HelperName
}
