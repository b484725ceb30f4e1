// Command testbin is a small bubbletea program used as the program under test
// by the player tests.
//
// Behavior:
//   - Shows a "ready> " input line and, below it, the last echoed line and
//     the terminal size as "size: COLSxROWS"
//   - On Enter, processes the current line:
//   - "quit": exits with status 0
//   - "fail": exits with status 3
//   - "bye": clears its output and exits with status 0
//   - anything else: shows "echo: <line>"
//   - Ctrl-C exits with status 130
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type model struct {
	input  textinput.Model
	echo   string
	width  int
	height int

	quitting bool
	code     int
}

func newModel() model {
	ti := textinput.New()
	ti.Prompt = "ready> "
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorHide)
	ti.Focus()
	return model{input: ti}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.code = 130
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			switch line {
			case "quit":
				return m, tea.Quit
			case "fail":
				m.code = 3
				return m, tea.Quit
			case "bye":
				m.quitting = true
				return m, tea.Quit
			}
			m.echo = line
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.echo != "" {
		fmt.Fprintf(&b, "echo: %s", m.echo)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "size: %dx%d", m.width, m.height)
	return b.String()
}

func main() {
	// Plain output keeps the rendered screen free of styling and avoids
	// terminal colour queries that nobody would answer.
	lipgloss.SetColorProfile(termenv.Ascii)
	lipgloss.SetHasDarkBackground(true)

	final, err := tea.NewProgram(newModel()).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "testbin: %v\n", err)
		os.Exit(1)
	}
	os.Exit(final.(model).code)
}
