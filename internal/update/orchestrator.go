package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	appErrors "cabplanner/internal/errors"

	"cabplanner/internal/debug"
)

// Progress bands for the phases of one update attempt. The download owns
// 0-70; the remaining stages report fixed points.
const (
	progressDownloadShare = 70
	progressExtracting    = 75
	progressLocating      = 85
	progressStaging       = 95
	progressDone          = 100
)

// DownloadTimeout bounds a whole package download.
const DownloadTimeout = 10 * time.Minute

// Orchestrator wires check, download, extract and install into one
// pipeline and reports through registered callbacks. Callbacks fire on
// the pipeline goroutine; callers marshal them onto their own event loop.
type Orchestrator struct {
	version string
	checker *Checker
	coord   *Coordinator

	onCheckComplete func(CheckResult)
	onProgress      func(percent int)
	onComplete      func()
	onFailed        func(err error)
	onCancelled     func()

	mu        sync.Mutex
	busy      bool
	cancelled atomic.Bool

	// tempDir is overridable in tests.
	tempDir func() (string, error)
}

// NewOrchestrator creates an update orchestrator for the given build version.
func NewOrchestrator(version string, checker *Checker, coord *Coordinator) *Orchestrator {
	return &Orchestrator{
		version: version,
		checker: checker,
		coord:   coord,
		tempDir: func() (string, error) {
			return os.MkdirTemp("", "cabplanner-update-*")
		},
	}
}

// OnCheckComplete registers the check-complete callback.
func (o *Orchestrator) OnCheckComplete(fn func(CheckResult)) { o.onCheckComplete = fn }

// OnProgress registers the progress callback (percent 0-100).
func (o *Orchestrator) OnProgress(fn func(percent int)) { o.onProgress = fn }

// OnComplete registers the update-complete callback.
func (o *Orchestrator) OnComplete(fn func()) { o.onComplete = fn }

// OnFailed registers the failure callback.
func (o *Orchestrator) OnFailed(fn func(err error)) { o.onFailed = fn }

// OnCancelled registers the cancellation callback. Cancellation is a
// distinct outcome, not a failure.
func (o *Orchestrator) OnCancelled(fn func()) { o.onCancelled = fn }

// Check queries the release feed on a background goroutine and reports
// through OnCheckComplete or OnFailed.
func (o *Orchestrator) Check(ctx context.Context) {
	go func() {
		result, err := o.checker.Check(ctx, o.version)
		if err != nil {
			debug.Logf("update check failed: %v", err)
			o.emitFailed(err)
			return
		}
		debug.Logf("update check: current=%s latest=%s available=%v",
			result.CurrentVersion, result.LatestVersion, result.Available)
		if o.onCheckComplete != nil {
			o.onCheckComplete(*result)
		}
	}()
}

// Perform runs the whole download-extract-install pipeline on a background
// goroutine. Only one attempt runs at a time; a second call while busy is
// ignored. After any outcome the orchestrator returns to idle so a fresh
// attempt can be made.
func (o *Orchestrator) Perform(ctx context.Context) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return
	}
	o.busy = true
	o.cancelled.Store(false)
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			o.busy = false
			o.mu.Unlock()
		}()
		o.perform(ctx)
	}()
}

// Cancel requests cooperative cancellation of an in-flight download.
// It has no effect once the install swap has begun.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

func (o *Orchestrator) perform(ctx context.Context) {
	// Refuse before any network call in a development run.
	if _, err := o.coord.LocateExecutable(); err != nil {
		o.emitFailed(err)
		return
	}

	result, err := o.checker.Check(ctx, o.version)
	if err != nil {
		o.emitFailed(err)
		return
	}
	if result.Asset == nil {
		o.emitFailed(appErrors.New(appErrors.CodeNoAsset,
			"no package found for this platform in the latest release", nil))
		return
	}

	workDir, err := o.tempDir()
	if err != nil {
		o.emitFailed(fmt.Errorf("create temp directory: %w", err))
		return
	}
	cleanup := func() { _ = os.RemoveAll(workDir) }

	archivePath := filepath.Join(workDir, "update.zip")
	err = Download(result.Asset.BrowserDownloadURL, archivePath, DownloadOptions{
		OnProgress: func(percent int) {
			o.emitProgress(percent * progressDownloadShare / 100)
		},
		IsCancelled: o.cancelled.Load,
		Timeout:     DownloadTimeout,
	})
	if err != nil {
		cleanup()
		if appErrors.IsCode(err, appErrors.CodeCancelled) {
			o.emitCancelled()
			return
		}
		o.emitFailed(err)
		return
	}

	if o.cancelled.Load() {
		cleanup()
		o.emitCancelled()
		return
	}

	o.emitProgress(progressExtracting)
	extractDir := filepath.Join(workDir, "extracted")
	if err := SafeExtract(archivePath, extractDir); err != nil {
		cleanup()
		o.emitFailed(err)
		return
	}

	o.emitProgress(progressLocating)
	plan, err := o.coord.BuildPlan(extractDir)
	if err != nil {
		cleanup()
		o.emitFailed(err)
		return
	}

	if o.cancelled.Load() {
		cleanup()
		o.emitCancelled()
		return
	}

	// Point of no return: the swap must not be interrupted or retried.
	o.emitProgress(progressStaging)
	if err := o.coord.Execute(plan); err != nil {
		cleanup()
		o.emitFailed(err)
		return
	}

	// The external helper cleans the staging directory itself; removing
	// it here would pull the new files out from under it.
	if plan.Kind == PlanInProcess {
		cleanup()
	}

	o.emitProgress(progressDone)
	if o.onComplete != nil {
		o.onComplete()
	}
}

func (o *Orchestrator) emitProgress(percent int) {
	if o.onProgress != nil {
		o.onProgress(percent)
	}
}

func (o *Orchestrator) emitCancelled() {
	debug.Log("update cancelled by user")
	if o.onCancelled != nil {
		o.onCancelled()
	}
}

// emitFailed converts any pipeline error into a coded failure event so the
// caller can distinguish outcomes without string matching.
func (o *Orchestrator) emitFailed(err error) {
	if appErrors.CodeOf(err) == appErrors.CodeUnknown {
		err = appErrors.New(appErrors.CodeUnknown, fmt.Sprintf("update failed: %v", err), err)
	}
	debug.Logf("update failed: %v", err)
	if o.onFailed != nil {
		o.onFailed(err)
	}
}
