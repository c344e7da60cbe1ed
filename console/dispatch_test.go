package console

import (
	"testing"

	"github.com/guseggert/wrapperconsole/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedSession(t *testing.T) (*Session, *lineView, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	view := &lineView{client: 5}
	return NewSession(view, zap.New(core).Sugar()), view, logs
}

func TestDispatchStartingAndLog(t *testing.T) {
	s, _, _ := newObservedSession(t)
	s.HandleFrame([]byte(`{"type":"STATE","payload":"starting"}` + "\n" + `{"type":"LOG","payload":"boot"}`))

	assert.Equal(t, Presentation{Mode: ModeStarting, Label: "starting"}, s.Presentation())
	assert.Equal(t, []LogEntry{{Text: "boot"}}, s.Entries())
}

func TestDispatchPreservesOrderAcrossFrames(t *testing.T) {
	s, view, _ := newObservedSession(t)
	frame1, err := protocol.EncodeFrame(
		protocol.Event{Type: protocol.EventLog, Payload: "one"},
		protocol.Event{Type: protocol.EventError, Payload: "two"},
	)
	require.NoError(t, err)
	frame2, err := protocol.EncodeFrame(protocol.Event{Type: protocol.EventLog, Payload: "three"})
	require.NoError(t, err)

	s.HandleFrame(frame1)
	s.HandleFrame(frame2)

	exp := []LogEntry{{Text: "one"}, {Text: "two", IsError: true}, {Text: "three"}}
	assert.Equal(t, exp, s.Entries())
	assert.Equal(t, exp, view.entries)
}

func TestDispatchUnknownTypeIsReportedNotRendered(t *testing.T) {
	s, _, logs := newObservedSession(t)
	s.HandleFrame([]byte(`{"type":"METRIC","payload":"cpu=3"}`))

	assert.Empty(t, s.Entries())
	assert.Equal(t, StateNotConnected, s.Status.State())
	require.Equal(t, 1, logs.FilterMessage("unknown event type").Len())
	assert.Equal(t, "METRIC", logs.FilterMessage("unknown event type").All()[0].ContextMap()["Type"])
}

func TestDispatchUnrecognizedStateKeepsMode(t *testing.T) {
	s, _, logs := newObservedSession(t)
	s.HandleFrame([]byte(`{"type":"STATE","payload":"online"}`))
	s.HandleFrame([]byte(`{"type":"STATE","payload":"rebooting"}`))

	p := s.Presentation()
	assert.Equal(t, ModeOnline, p.Mode)
	assert.Equal(t, "rebooting", p.Label)
	assert.Equal(t, 1, logs.FilterMessage("ignoring unrecognized state").Len())
}

func TestDispatchSkipsMalformedLines(t *testing.T) {
	s, _, logs := newObservedSession(t)
	s.HandleFrame([]byte("{\"type\":\"LOG\",\"payload\":\"a\"}\nnot json\n{\"type\":\"LOG\",\"payload\":\"c\"}"))

	assert.Equal(t, []LogEntry{{Text: "a"}, {Text: "c"}}, s.Entries())
	assert.Equal(t, 1, logs.FilterMessage("dropping malformed event").Len())
}

func TestDispatchStateSequence(t *testing.T) {
	s, _, _ := newObservedSession(t)
	for _, p := range []string{"starting", "online", "stopping"} {
		s.Dispatcher.Dispatch(protocol.Event{Type: protocol.EventState, Payload: p})
	}
	assert.Equal(t, Presentation{Mode: ModeOffline, Label: "stopping"}, s.Presentation())
	assert.Empty(t, s.Entries())
}

// snapshotView records the status label shown at the moment each entry is added.
type snapshotView struct {
	lineView
	label  func() string
	labels []string
}

func (v *snapshotView) Add(entry LogEntry) {
	v.lineView.Add(entry)
	v.labels = append(v.labels, v.label())
}

func TestDispatchAppliesStateBeforeLaterLogs(t *testing.T) {
	view := &snapshotView{lineView: lineView{client: 5}}
	s := NewSession(view, nil)
	view.label = func() string { return s.Presentation().Label }

	frame, err := protocol.EncodeFrame(
		protocol.Event{Type: protocol.EventState, Payload: "starting"},
		protocol.Event{Type: protocol.EventLog, Payload: "boot"},
		protocol.Event{Type: protocol.EventState, Payload: "online"},
		protocol.Event{Type: protocol.EventLog, Payload: "ready"},
	)
	require.NoError(t, err)
	s.HandleFrame(frame)

	assert.Equal(t, []LogEntry{{Text: "boot"}, {Text: "ready"}}, view.entries)
	assert.Equal(t, []string{"starting", "online"}, view.labels)
	assert.Equal(t, ModeOnline, s.Presentation().Mode)
}
