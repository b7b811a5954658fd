// Package ui renders the interactive self-update dialog: check result,
// release notes, download progress and final outcome.
package ui

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"

	"cabplanner/internal/update"
)

type phase int

const (
	phaseChecking phase = iota
	phaseUpToDate
	phasePrompt
	phaseDownloading
	phaseDone
	phaseFailed
	phaseCancelled
)

// Outcome summarizes how the dialog ended, for the caller's exit code.
type Outcome int

const (
	OutcomeNoUpdate Outcome = iota
	OutcomeUpdated
	OutcomeDeclined
	OutcomeFailed
)

// Model is the bubbletea model for the update dialog.
type Model struct {
	orch   *update.Orchestrator
	events chan tea.Msg

	phase   phase
	styles  styles
	spinner spinner.Model
	bar     progress.Model

	version string
	result  update.CheckResult
	notes   string
	errText string
	status  string
	width   int

	outcome Outcome
}

// NewDialog builds the update dialog around an orchestrator. The
// orchestrator's callbacks are wired here so every pipeline event lands
// on the bubbletea event loop, never on the pipeline goroutine.
func NewDialog(orch *update.Orchestrator, version string) *Model {
	m := &Model{
		orch:    orch,
		events:  make(chan tea.Msg, 16),
		styles:  newStyles(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient()),
		version: version,
		width:   dialogWidth,
	}

	orch.OnCheckComplete(func(result update.CheckResult) {
		m.events <- checkCompleteMsg{result: result}
	})
	orch.OnProgress(func(percent int) {
		m.events <- progressMsg{percent: percent}
	})
	orch.OnComplete(func() {
		m.events <- updateCompleteMsg{}
	})
	orch.OnFailed(func(err error) {
		m.events <- updateFailedMsg{err: err}
	})
	orch.OnCancelled(func() {
		m.events <- updateCancelledMsg{}
	})

	return m
}

// Outcome reports how the dialog ended. Valid after the program returns.
func (m *Model) Outcome() Outcome {
	return m.outcome
}

// Init starts the update check and the event pump.
func (m *Model) Init() tea.Cmd {
	m.orch.Check(context.Background())
	return tea.Batch(m.spinner.Tick, m.listen())
}

// listen pumps one pipeline event onto the bubbletea loop.
func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width > dialogWidth {
			m.width = dialogWidth
		}
		m.bar.Width = m.width - 8
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case checkCompleteMsg:
		return m.handleCheckComplete(msg)

	case progressMsg:
		cmd := m.bar.SetPercent(float64(msg.percent) / 100)
		return m, tea.Batch(cmd, m.listen())

	case updateCompleteMsg:
		m.phase = phaseDone
		m.outcome = OutcomeUpdated
		return m, tea.Quit

	case updateFailedMsg:
		m.phase = phaseFailed
		m.outcome = OutcomeFailed
		m.errText = msg.err.Error()
		return m, nil

	case updateCancelledMsg:
		m.phase = phaseCancelled
		m.outcome = OutcomeDeclined
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.isTerminal() {
		return m, tea.Quit
	}

	switch msg.String() {
	case "ctrl+c", "q", "esc":
		if m.phase == phaseDownloading {
			// The pump from the last pipeline event is still waiting on
			// the channel; it will deliver the cancellation.
			m.orch.Cancel()
			return m, nil
		}
		if m.outcome == OutcomeNoUpdate && m.phase == phasePrompt {
			m.outcome = OutcomeDeclined
		}
		return m, tea.Quit

	case "enter", "y":
		if m.phase == phasePrompt {
			m.phase = phaseDownloading
			m.orch.Perform(context.Background())
			return m, m.listen()
		}

	case "n":
		if m.phase == phasePrompt {
			m.outcome = OutcomeDeclined
			return m, tea.Quit
		}

	case "c":
		if m.phase == phasePrompt && m.result.ReleaseURL != "" {
			if err := clipboard.WriteAll(m.result.ReleaseURL); err != nil {
				m.status = "could not copy link"
			} else {
				m.status = "release link copied"
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *Model) handleCheckComplete(msg checkCompleteMsg) (tea.Model, tea.Cmd) {
	m.result = msg.result
	if !msg.result.Available {
		m.phase = phaseUpToDate
		return m, nil
	}

	m.phase = phasePrompt
	m.notes = renderNotes(msg.result.ReleaseNotes, m.width-6)
	return m, nil
}

func (m *Model) isTerminal() bool {
	switch m.phase {
	case phaseUpToDate, phaseDone, phaseFailed, phaseCancelled:
		return true
	}
	return false
}

func (m *Model) View() string {
	var body string
	switch m.phase {
	case phaseChecking:
		body = fmt.Sprintf("%s Checking for updates...", m.spinner.View())

	case phaseUpToDate:
		body = m.styles.okText.Render("Cabplanner is up to date.") + "\n" +
			m.styles.faint.Render("Current version: "+m.result.CurrentVersion) +
			m.styles.helpText.Render("\npress any key to close")

	case phasePrompt:
		body = fmt.Sprintf("Update available: %s -> %s\n",
			m.styles.version.Render(m.result.CurrentVersion),
			m.styles.version.Render(m.result.LatestVersion))
		if m.notes != "" {
			body += "\n" + m.notes
		}
		if m.status != "" {
			body += "\n" + m.styles.faint.Render(m.status)
		}
		body += m.styles.helpText.Render("\nenter install · n skip · c copy link · q quit")

	case phaseDownloading:
		body = "Downloading update...\n\n" + m.bar.View() +
			m.styles.helpText.Render("\nesc cancel")

	case phaseDone:
		body = m.styles.okText.Render("Update installed. Restarting...")

	case phaseFailed:
		body = m.styles.errText.Render("Update failed") + "\n" +
			wordwrap.String(m.errText, m.width-6) +
			m.styles.helpText.Render("\npress any key to close")

	case phaseCancelled:
		body = "Update cancelled.\n" +
			m.styles.faint.Render("You can check again later from settings.") +
			m.styles.helpText.Render("\npress any key to close")
	}

	title := m.styles.title.Render("Cabplanner Update")
	return m.styles.dialog.Render(title + "\n\n" + body)
}

// renderNotes renders release notes markdown for the terminal. Rendering
// failures fall back to plain wrapped text rather than hiding the notes.
func renderNotes(markdown string, width int) string {
	if markdown == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return wordwrap.String(markdown, width)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return wordwrap.String(markdown, width)
	}
	return out
}
