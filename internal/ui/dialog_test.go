package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"cabplanner/internal/update"
)

func newTestDialog() *Model {
	checker := update.NewChecker("owner", "repo")
	coord := update.NewCoordinator("1.0.0", update.WithRelaunch(false))
	orch := update.NewOrchestrator("1.0.0", checker, coord)
	return NewDialog(orch, "1.0.0")
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestDialogStartsChecking(t *testing.T) {
	m := newTestDialog()
	if m.phase != phaseChecking {
		t.Errorf("initial phase = %v, want checking", m.phase)
	}
	view := m.View()
	if !strings.Contains(view, "Checking for updates") {
		t.Errorf("checking view missing status text:\n%s", view)
	}
}

func TestDialogUpToDate(t *testing.T) {
	m := newTestDialog()
	model, _ := m.Update(checkCompleteMsg{result: update.CheckResult{
		Available:      false,
		CurrentVersion: "1.0.0",
		LatestVersion:  "1.0.0",
	}})
	m = model.(*Model)

	if m.phase != phaseUpToDate {
		t.Errorf("phase = %v, want up-to-date", m.phase)
	}
	if !strings.Contains(m.View(), "up to date") {
		t.Error("up-to-date view missing confirmation")
	}

	// Any terminal phase closes on enter.
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !isQuit(cmd) {
		t.Error("enter should quit from a terminal phase")
	}
	if m.Outcome() != OutcomeNoUpdate {
		t.Errorf("outcome = %v, want no-update", m.Outcome())
	}
}

func TestDialogPromptAndDecline(t *testing.T) {
	m := newTestDialog()
	model, _ := m.Update(checkCompleteMsg{result: update.CheckResult{
		Available:      true,
		CurrentVersion: "1.0.0",
		LatestVersion:  "2.0.0",
		ReleaseNotes:   "## What's new\n- things",
	}})
	m = model.(*Model)

	if m.phase != phasePrompt {
		t.Fatalf("phase = %v, want prompt", m.phase)
	}
	view := m.View()
	if !strings.Contains(view, "1.0.0") || !strings.Contains(view, "2.0.0") {
		t.Errorf("prompt view missing versions:\n%s", view)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if !isQuit(cmd) {
		t.Error("n should quit the prompt")
	}
	if m.Outcome() != OutcomeDeclined {
		t.Errorf("outcome = %v, want declined", m.Outcome())
	}
}

func TestDialogFailure(t *testing.T) {
	m := newTestDialog()
	model, _ := m.Update(updateFailedMsg{err: errors.New("release feed request failed")})
	m = model.(*Model)

	if m.phase != phaseFailed {
		t.Errorf("phase = %v, want failed", m.phase)
	}
	if m.Outcome() != OutcomeFailed {
		t.Errorf("outcome = %v, want failed", m.Outcome())
	}
	view := m.View()
	if !strings.Contains(view, "Update failed") || !strings.Contains(view, "release feed") {
		t.Errorf("failure view missing details:\n%s", view)
	}
}

func TestDialogComplete(t *testing.T) {
	m := newTestDialog()
	_, cmd := m.Update(updateCompleteMsg{})
	if !isQuit(cmd) {
		t.Error("completion should quit the dialog")
	}
	if m.Outcome() != OutcomeUpdated {
		t.Errorf("outcome = %v, want updated", m.Outcome())
	}
}

func TestDialogCancelled(t *testing.T) {
	m := newTestDialog()
	model, _ := m.Update(updateCancelledMsg{})
	m = model.(*Model)

	if m.phase != phaseCancelled {
		t.Errorf("phase = %v, want cancelled", m.phase)
	}
	if m.Outcome() != OutcomeDeclined {
		t.Errorf("outcome = %v, want declined", m.Outcome())
	}
}

func TestDialogCancelDuringDownload(t *testing.T) {
	m := newTestDialog()
	m.phase = phaseDownloading

	// Cancelling must not spawn another event pump: the one waiting since
	// the last pipeline event delivers the cancellation. A nil command and
	// an unchanged phase mean we are waiting for that event, not quitting.
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = model.(*Model)
	if cmd != nil {
		t.Errorf("cancel returned a command, want nil")
	}
	if m.phase != phaseDownloading {
		t.Errorf("phase = %v, want downloading until the pipeline confirms", m.phase)
	}

	model, _ = m.Update(updateCancelledMsg{})
	m = model.(*Model)
	if m.phase != phaseCancelled {
		t.Errorf("phase = %v, want cancelled", m.phase)
	}
	if m.Outcome() != OutcomeDeclined {
		t.Errorf("outcome = %v, want declined", m.Outcome())
	}
}

func TestRenderNotesFallsBackToPlainText(t *testing.T) {
	out := renderNotes("plain note", 10) // below minimum wrap width
	if !strings.Contains(out, "plain") {
		t.Errorf("renderNotes output missing content: %q", out)
	}
}
