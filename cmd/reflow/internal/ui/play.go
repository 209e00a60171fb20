package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/recera/reflow/internal/session"
	"github.com/recera/reflow/pkg/diag"
	rhtml "github.com/recera/reflow/pkg/renderer/html"
	"gopkg.in/yaml.v3"
)

// ErrQuit is returned by ParseCommand for quit and exit.
var ErrQuit = errors.New("quit")

// ParseCommand turns a command line into a session action:
//
//	set name=value [name=value ...]
//	fire <selector> <event>
//
// Values are parsed as YAML scalars or flow collections, so count=3 sets
// an integer and tags=[a,b] a list.
func ParseCommand(line string) (session.Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return session.Action{}, errors.New("empty command")
	}
	switch fields[0] {
	case "quit", "exit", "q":
		return session.Action{}, ErrQuit
	case "set":
		if len(fields) < 2 {
			return session.Action{}, errors.New("usage: set name=value ...")
		}
		values := make(map[string]any, len(fields)-1)
		for _, f := range fields[1:] {
			name, raw, ok := strings.Cut(f, "=")
			if !ok || name == "" {
				return session.Action{}, fmt.Errorf("set: %q is not name=value", f)
			}
			var v any
			if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
				return session.Action{}, fmt.Errorf("set %s: %w", name, err)
			}
			values[name] = v
		}
		return session.Action{Set: values}, nil
	case "fire":
		if len(fields) != 3 {
			return session.Action{}, errors.New("usage: fire <selector> <event>")
		}
		return session.Action{Dispatch: &session.Dispatch{Target: fields[1], Event: fields[2]}}, nil
	}
	return session.Action{}, fmt.Errorf("unknown command %q", fields[0])
}

// KeyMap defines the keyboard shortcuts of the play screen
type KeyMap struct {
	Enter    key.Binding
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	History  key.Binding
}

var DefaultKeyMap = KeyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
	History: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "previous command"),
	),
}

// Model is the play screen: the rendered tree above the failures of the
// last command and a prompt.
type Model struct {
	sess    *session.Session
	title   string
	input   textinput.Model
	view    viewport.Model
	diags   []*diag.Error
	history []string

	status    string
	statusErr bool

	width    int
	height   int
	ready    bool
	quitting bool
}

// NewModel creates a play model for s.
func NewModel(title string, s *session.Session) Model {
	in := textinput.New()
	in.Placeholder = "set count=1 | fire #inc click"
	in.Prompt = "› "
	in.CharLimit = 256
	in.Width = 60
	in.Focus()

	m := Model{
		sess:  s,
		title: title,
		input: in,
		view:  viewport.New(80, 20),
		diags: s.Drain(),
	}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles terminal input.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.input.Width = max(msg.Width-4, 10)
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DefaultKeyMap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, DefaultKeyMap.Enter):
			if m.Run(m.input.Value()) {
				m.quitting = true
				return m, tea.Quit
			}
			m.input.Reset()
			return m, nil
		case key.Matches(msg, DefaultKeyMap.History):
			if n := len(m.history); n > 0 {
				m.input.SetValue(m.history[n-1])
				m.input.CursorEnd()
			}
			return m, nil
		case key.Matches(msg, DefaultKeyMap.PageUp), key.Matches(msg, DefaultKeyMap.PageDown):
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Run executes one command line and reports whether it asked to quit.
func (m *Model) Run(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	action, err := ParseCommand(line)
	if errors.Is(err, ErrQuit) {
		return true
	}
	m.history = append(m.history, line)
	if err == nil {
		err = m.sess.Apply(action)
	}
	m.diags = m.sess.Drain()
	if err != nil {
		m.status, m.statusErr = err.Error(), true
	} else {
		m.status, m.statusErr = action.String(), false
	}
	m.refresh()
	return false
}

// Diagnostics returns the failures of the last command.
func (m Model) Diagnostics() []*diag.Error {
	return m.diags
}

// Content returns the rendered tree shown in the viewport.
func (m Model) Content() string {
	out, err := m.sess.Render(rhtml.Options{Indent: "  "})
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	return strings.TrimRight(out, "\n")
}

func (m *Model) refresh() {
	m.view.SetContent(m.Content())
	m.layout()
}

func (m *Model) layout() {
	if !m.ready {
		return
	}
	diagHeight := lipgloss.Height(FormatDiagnostics(m.diags)) + 2
	// title, two box borders, status, prompt and help
	h := m.height - diagHeight - 6
	m.view.Width = max(m.width-4, 10)
	m.view.Height = max(h, 3)
}

// View renders the screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("reflow play") + " " + subtitleStyle.Render(m.title) + "\n")
	b.WriteString(boxStyle.Render(m.view.View()) + "\n")

	diagBox := boxStyle
	if len(m.diags) > 0 {
		diagBox = errorBoxStyle
	}
	b.WriteString(diagBox.Render(FormatDiagnostics(m.diags)) + "\n")

	switch {
	case m.status == "":
	case m.statusErr:
		b.WriteString(errorStyle.Render("✗ "+m.status) + "\n")
	default:
		b.WriteString(mutedStyle.Render("✓ "+m.status) + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("enter run • ↑ previous • pgup/pgdn scroll • esc quit"))
	return b.String()
}
