package console

import (
	"fmt"
	"io"
)

// LogEntry is one rendered line of the log view.
// IsError only affects presentation.
type LogEntry struct {
	Text    string
	IsError bool
}

// View is a scrollable surface that log entries are rendered into.
// All measurements share one unit, such as terminal lines.
type View interface {
	// ScrollTop is the offset of the first visible unit.
	ScrollTop() int
	// ScrollHeight is the total height of the content.
	ScrollHeight() int
	// ClientHeight is the height of the visible area.
	ClientHeight() int
	SetScrollTop(top int)
	Add(entry LogEntry)
}

// LogSink appends entries to a View and keeps the view pinned to the bottom
// only if it was already there.
type LogSink struct {
	view    View
	entries []LogEntry
}

func NewLogSink(view View) *LogSink {
	return &LogSink{view: view}
}

// Append adds an entry. The bottom check is made against the view before the entry is added.
func (s *LogSink) Append(entry LogEntry) {
	atBottom := s.view.ScrollTop() > s.view.ScrollHeight()-s.view.ClientHeight()-1
	s.entries = append(s.entries, entry)
	s.view.Add(entry)
	if atBottom {
		s.view.SetScrollTop(s.view.ScrollHeight() - s.view.ClientHeight())
	}
}

// Entries returns a copy of everything appended so far.
func (s *LogSink) Entries() []LogEntry {
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// WriterView renders entries as lines on a writer. It has no scrollback,
// so it always reports being at the bottom.
type WriterView struct {
	Out io.Writer
	// Err receives error entries. Out is used when nil.
	Err io.Writer

	lines int
}

func (v *WriterView) ScrollTop() int       { return 0 }
func (v *WriterView) ScrollHeight() int    { return v.lines }
func (v *WriterView) ClientHeight() int    { return v.lines }
func (v *WriterView) SetScrollTop(top int) {}

func (v *WriterView) Add(entry LogEntry) {
	v.lines++
	w := v.Out
	if entry.IsError && v.Err != nil {
		w = v.Err
	}
	fmt.Fprintln(w, entry.Text)
}
