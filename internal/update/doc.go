// Package update provides version checking and self-update functionality.
//
// This package handles:
//   - Querying the release feed for the latest release information
//   - Comparing version strings to detect available updates
//   - Deciding whether a scheduled check is due
//   - Downloading release archives with progress and cancellation
//   - Extracting archives with zip-slip protection
//   - Swapping the running executable, in-process or via the external helper
//
// The package is designed to be isolated from UI concerns. The Orchestrator
// exposes callback registration (OnCheckComplete, OnProgress, OnComplete,
// OnFailed, OnCancelled) and runs the pipeline on background goroutines;
// callers are responsible for marshalling events onto their own event loop.
//
// Example usage:
//
//	checker := update.NewChecker(update.DefaultRepoOwner, update.DefaultRepoName)
//	coord := update.NewCoordinator(version)
//	orch := update.NewOrchestrator(version, checker, coord)
//	orch.OnCheckComplete(func(res update.CheckResult) { /* prompt user */ })
//	orch.Check(ctx)
package update
