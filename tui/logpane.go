package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/guseggert/wrapperconsole/console"
)

// LogPane is a scrollable log view backed by a bubbles viewport. It measures in terminal lines.
type LogPane struct {
	viewport viewport.Model
	lines    []string
}

func NewLogPane(width, height int) *LogPane {
	return &LogPane{viewport: viewport.New(width, height)}
}

func (p *LogPane) ScrollTop() int       { return p.viewport.YOffset }
func (p *LogPane) ScrollHeight() int    { return p.viewport.TotalLineCount() }
func (p *LogPane) ClientHeight() int    { return p.viewport.Height }
func (p *LogPane) SetScrollTop(top int) { p.viewport.SetYOffset(top) }

func (p *LogPane) Add(entry console.LogEntry) {
	line := entry.Text
	if entry.IsError {
		line = errorStyle.Render(line)
	}
	p.lines = append(p.lines, line)
	p.viewport.SetContent(strings.Join(p.lines, "\n"))
}

// Scroll moves the view by delta lines, clamped to the content.
func (p *LogPane) Scroll(delta int) {
	p.viewport.SetYOffset(p.viewport.YOffset + delta)
}

// SetSize resizes the pane. A pane that was showing the last line keeps showing it.
func (p *LogPane) SetSize(width, height int) {
	atBottom := p.viewport.AtBottom()
	p.viewport.Width = width
	p.viewport.Height = height
	if atBottom {
		p.viewport.GotoBottom()
	} else {
		p.viewport.SetYOffset(p.viewport.YOffset)
	}
}

func (p *LogPane) View() string { return p.viewport.View() }
