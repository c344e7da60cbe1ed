package supervisor

import (
	"bytes"
	"strings"
)

// lineWriter splits a child's output stream into lines and hands each one to onLine.
// A partial trailing line is held until the next newline or Flush.
type lineWriter struct {
	buf    []byte
	onLine func(line string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(b), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
	}
	w.buf = nil
}

func (w *lineWriter) emit(b []byte) {
	w.onLine(strings.TrimSuffix(string(b), "\r"))
}
