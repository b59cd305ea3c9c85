package cli

import (
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/avelling/shelfsync/internal/importer"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#87AFFF"), // periwinkle
	Success: lipgloss.Color("#5FD75F"), // green
	Error:   lipgloss.Color("#FF5F5F"), // red
	Hint:    lipgloss.Color("#808080"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// flowUpdateMsg carries one import flow update into the UI.
type flowUpdateMsg importer.Update

// flowDoneMsg signals that the flow goroutine has returned.
type flowDoneMsg struct{ err error }

// importModel is the bubbletea model for the import progress display.
type importModel struct {
	cancel   func()
	update   importer.Update
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
}

// newImportModel creates a new import progress model. cancel aborts the
// running flow.
func newImportModel(cancel func()) importModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return importModel{
		cancel:   cancel,
		update:   importer.Update{Status: importer.StatusUploading, Message: "Starting"},
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m importModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m importModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Cancellation is not a failure: the flow publishes an idle
			// update and the program exits without an error message.
			m.quitting = true
			m.cancel()
			return m, nil
		}

	case flowUpdateMsg:
		m.update = importer.Update(msg)

		switch m.update.Status {
		case importer.StatusCompleted, importer.StatusFailed, importer.StatusIdle:
			m.done = true
		}
		return m, nil

	case flowDoneMsg:
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m importModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m importModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.update.Status))
	progressBar := m.progress.ViewAs(m.update.Fraction)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, m.update.Message, hint)
}

func (m importModel) finalView() string {
	if m.quitting || m.update.Status == importer.StatusIdle {
		return m.theme.hintStyle().Render("\nImport cancelled.\n")
	}

	if m.update.Err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Import failed: %s\n", m.update.Err))
	}

	if r := m.update.Result; r != nil {
		var output string
		output += m.theme.completedStyle().Render("✓ Import complete") + "\n\n"
		output += fmt.Sprintf("  Books imported:  %d\n", r.Created)
		if r.Skipped > 0 {
			output += fmt.Sprintf("  Already in library: %d\n", r.Skipped)
		}
		if r.Failed > 0 {
			output += fmt.Sprintf("  Failed to save:  %d\n", r.Failed)
		}
		if len(r.Errors) > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("\nRow errors (%d):\n", len(r.Errors)))
			for _, e := range r.Errors {
				output += fmt.Sprintf("  • %s: %s\n", e.Title, e.Message)
			}
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Import complete\n")
}

// RunImportProgress runs the interactive progress UI around an import
// flow. setup receives the UI's update sink and returns the blocking
// run function plus a cancel hook for Ctrl+C. Returns nil on success or
// user cancellation, the flow error on failure.
func RunImportProgress(setup func(onUpdate func(importer.Update)) (run func() error, cancel func())) error {
	var p *tea.Program
	run, cancel := setup(func(u importer.Update) {
		p.Send(flowUpdateMsg(u))
	})

	p = tea.NewProgram(newImportModel(cancel))

	flowErr := make(chan error, 1)
	go func() {
		err := run()
		flowErr <- err
		p.Send(flowDoneMsg{err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	runErr := <-flowErr
	if m, ok := finalModel.(importModel); ok {
		// User cancelled: the job was torn down cleanly, not an error.
		if m.quitting || m.update.Status == importer.StatusIdle {
			return nil
		}
	}
	return runErr
}
