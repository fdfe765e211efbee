package cli

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arloliu/go-xmodem/xmodem"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("57"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

const barWidth = 30

// ---------------------------------------------------------------------------
// Tracker
// ---------------------------------------------------------------------------

// tracker observes the transfers run by one command.
type tracker interface {
	// progress returns the progress callback for a transfer, or nil.
	progress(name string) xmodem.ProgressFunc
	// finish records the outcome of a transfer.
	finish(name string, err error)
}

// quietTracker ignores progress; the summary is printed afterwards.
type quietTracker struct{}

func (quietTracker) progress(string) xmodem.ProgressFunc { return nil }
func (quietTracker) finish(string, error)                {}

// teaTracker forwards events to a running bubbletea program.
type teaTracker struct {
	p *tea.Program
}

func (t teaTracker) progress(name string) xmodem.ProgressFunc {
	return func(p xmodem.Progress) {
		t.p.Send(progressMsg{name: name, progress: p})
	}
}

func (t teaTracker) finish(name string, err error) {
	t.p.Send(finishedMsg{name: name, err: err})
}

// track runs work, showing live progress for the named transfers when useTUI
// is set. total is the expected byte count per transfer, or 0 when unknown.
func track(out io.Writer, useTUI bool, title string, names []string, total int64, work func(tracker)) error {
	if !useTUI {
		work(quietTracker{})
		return nil
	}

	p := tea.NewProgram(newProgressModel(title, names, total), tea.WithOutput(out))

	done := make(chan struct{})
	go func() {
		defer close(done)
		work(teaTracker{p: p})
		p.Send(allDoneMsg{})
	}()

	_, err := p.Run()
	<-done // the view may be dismissed before the transfers end

	return err
}

// ---------------------------------------------------------------------------
// Tea messages
// ---------------------------------------------------------------------------

type progressMsg struct {
	name     string
	progress xmodem.Progress
}

type finishedMsg struct {
	name string
	err  error
}

type allDoneMsg struct{}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type transferState struct {
	progress xmodem.Progress
	finished bool
	err      error
}

// progressModel renders one progress line per transfer.
type progressModel struct {
	title  string
	names  []string
	total  int64
	states map[string]*transferState
	done   bool
}

func newProgressModel(title string, names []string, total int64) progressModel {
	states := make(map[string]*transferState, len(names))
	for _, n := range names {
		states[n] = &transferState{}
	}

	return progressModel{title: title, names: names, total: total, states: states}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		if st, ok := m.states[msg.name]; ok {
			st.progress = msg.progress
		}

	case finishedMsg:
		if st, ok := m.states[msg.name]; ok {
			st.finished = true
			st.err = msg.err
		}

	case allDoneMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		// Transfers cannot be interrupted mid-block; only stop rendering.
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, name := range m.names {
		st := m.states[name]
		b.WriteString(nameStyle.Render(name))
		b.WriteString("  ")
		b.WriteString(m.bar(st.progress.Bytes))
		b.WriteString("  ")
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d blocks  %d bytes  %d retries",
			st.progress.Blocks, st.progress.Bytes, st.progress.Retries)))

		switch {
		case st.finished && st.err != nil:
			b.WriteString("  " + failStyle.Render("failed"))
		case st.finished:
			b.WriteString("  " + okStyle.Render("done"))
		}
		b.WriteString("\n")
	}

	if !m.done {
		b.WriteString(dimStyle.Render("\nq: hide progress"))
		b.WriteString("\n")
	}

	return b.String()
}

// bar renders a fixed-width progress bar. Without a known total it shows
// an empty bar.
func (m progressModel) bar(bytes int64) string {
	filled := 0
	if m.total > 0 {
		filled = int(min(bytes, m.total) * barWidth / m.total)
	}

	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
}
