package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

const frameSeparator = '\n'

// LineError reports a frame line that could not be decoded into an Event.
type LineError struct {
	// Line is the zero-based index of the line within its frame, counting empty lines.
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("decoding frame line %d %q: %s", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

var errNotObject = errors.New("not a JSON object")

// EncodeCommand serializes a single command frame.
// The caller is responsible for not sending empty payloads.
func EncodeCommand(target Target, payload string) ([]byte, error) {
	b, err := json.Marshal(Command{Target: target, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	return b, nil
}

// DecodeCommand parses a single command frame and checks its target.
func DecodeCommand(frame []byte) (Command, error) {
	var cmd *Command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	if cmd == nil {
		return Command{}, fmt.Errorf("decoding command: %w", errNotObject)
	}
	if !cmd.Target.Valid() {
		return Command{}, fmt.Errorf("no known target for %q", cmd.Target)
	}
	return *cmd, nil
}

// EncodeFrame joins the given events into one newline-delimited frame.
func EncodeFrame(events ...Event) ([]byte, error) {
	var buf bytes.Buffer
	for i, ev := range events {
		if i > 0 {
			buf.WriteByte(frameSeparator)
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encoding event %d: %w", i, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// DecodeFrame returns the events of a frame in order.
// Lines are decoded lazily, one per iteration, and empty lines are skipped.
// A line that fails to decode yields a *LineError; iteration continues with the next line.
func DecodeFrame(frame []byte) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		rest := frame
		for line := 0; len(rest) > 0; line++ {
			seg := rest
			if i := bytes.IndexByte(rest, frameSeparator); i >= 0 {
				seg, rest = rest[:i], rest[i+1:]
			} else {
				rest = nil
			}
			if len(seg) == 0 {
				continue
			}
			ev, err := decodeEvent(seg)
			if err != nil {
				if !yield(Event{}, &LineError{Line: line, Text: string(seg), Err: err}) {
					return
				}
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func decodeEvent(b []byte) (Event, error) {
	var ev *Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, err
	}
	if ev == nil {
		return Event{}, errNotObject
	}
	return *ev, nil
}
