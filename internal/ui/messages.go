package ui

import "cabplanner/internal/update"

// Event messages marshalled from the update pipeline goroutine onto the
// bubbletea event loop.

type checkCompleteMsg struct {
	result update.CheckResult
}

type progressMsg struct {
	percent int
}

type updateCompleteMsg struct{}

type updateFailedMsg struct {
	err error
}

type updateCancelledMsg struct{}
