package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/standardbeagle/corecache/internal/daemon"
)

var progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

// progressMsg reports HandleIndex's running counters.
type progressMsg struct {
	scanned, indexed, symbols int
}

// indexDoneMsg signals HandleIndex has returned.
type indexDoneMsg struct {
	result daemon.IndexResult
	err    error
}

// indexProgressModel is the bubbletea model driving the index command's
// interactive progress display, grounded on the teacher's internal/ui
// spinner usage but narrowed to a single indeterminate counter display
// since a file count isn't known until the scan finishes.
type indexProgressModel struct {
	spinner spinner.Model
	progressMsg
	done   bool
	result daemon.IndexResult
	err    error
}

func newIndexProgressModel() indexProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = progressStyle
	return indexProgressModel{spinner: s}
}

func (m indexProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m indexProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.progressMsg = msg
		return m, nil
	case indexDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m indexProgressModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s scanning  scanned=%d indexed=%d symbols=%d\n",
		m.spinner.View(), m.scanned, m.indexed, m.symbols)
}
