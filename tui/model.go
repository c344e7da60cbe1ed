// Package tui is the terminal console: a status line, the log pane and a command input.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guseggert/wrapperconsole/console"
	"github.com/guseggert/wrapperconsole/protocol"
)

const helpText = "ctrl+s start  ctrl+r restart  ctrl+x stop  enter send  pgup/pgdn scroll  ctrl+c quit"

// Sender sends a command to the supervisor. It is only called from Update.
type Sender interface {
	Send(cmd protocol.Command)
}

// runMsg carries a function posted to the loop.
type runMsg func()

// ProgramLoop is a console.Loop that runs posted functions inside the program's Update.
type ProgramLoop struct {
	program *tea.Program
}

func NewProgramLoop() *ProgramLoop { return &ProgramLoop{} }

// Attach binds the loop to p. It must be called before p runs.
func (l *ProgramLoop) Attach(p *tea.Program) { l.program = p }

func (l *ProgramLoop) Post(fn func()) {
	l.program.Send(runMsg(fn))
}

type Model struct {
	session *console.Session
	pane    *LogPane
	input   textinput.Model
	sender  Sender
	start   func()
}

type Option func(m *Model)

// WithStart registers a function run once the program is up, typically the controller's Start.
func WithStart(f func()) Option {
	return func(m *Model) {
		m.start = f
	}
}

func NewModel(session *console.Session, pane *LogPane, sender Sender, opts ...Option) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "server command"
	input.Focus()
	m := Model{
		session: session,
		pane:    pane,
		input:   input,
		sender:  sender,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.start != nil {
		start := m.start
		cmds = append(cmds, func() tea.Msg {
			start()
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runMsg:
		msg()
		return m, nil
	case tea.WindowSizeMsg:
		m.input.Width = msg.Width - lipgloss.Width(m.input.Prompt) - 1
		// status line and input line
		m.pane.SetSize(msg.Width, max(msg.Height-2, 1))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+s":
			m.sendWrapper(protocol.WrapperStart)
			return m, nil
		case "ctrl+r":
			m.sendWrapper(protocol.WrapperRestart)
			return m, nil
		case "ctrl+x":
			m.sendWrapper(protocol.WrapperStop)
			return m, nil
		case "enter":
			m.sender.Send(protocol.Command{Target: protocol.TargetServer, Payload: m.input.Value()})
			m.input.Reset()
			return m, nil
		case "pgup":
			m.pane.Scroll(-m.pane.ClientHeight())
			return m, nil
		case "pgdown":
			m.pane.Scroll(m.pane.ClientHeight())
			return m, nil
		case "up":
			m.pane.Scroll(-1)
			return m, nil
		case "down":
			m.pane.Scroll(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) sendWrapper(payload string) {
	m.sender.Send(protocol.Command{Target: protocol.TargetWrapper, Payload: payload})
}

func (m Model) View() string {
	p := m.session.Presentation()
	status := StatusStyle(p.Mode).Render(p.Label)
	help := helpStyle.Render(helpText)
	header := lipgloss.JoinHorizontal(lipgloss.Top, status, " ", help)
	return fmt.Sprintf("%s\n%s\n%s", header, m.pane.View(), m.input.View())
}
