package console

import (
	"go.uber.org/zap"
)

const (
	closedMessage      = "Connection closed."
	unsupportedMessage = "WebSockets are not supported."
)

// Session holds the console state for one connection lifetime.
// It is not safe for concurrent use; every method must run on the UI loop.
type Session struct {
	Status     *StatusMachine
	Log        *LogSink
	Dispatcher *Dispatcher
}

func NewSession(view View, log *zap.SugaredLogger) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	status := NewStatusMachine()
	sink := NewLogSink(view)
	return &Session{
		Status:     status,
		Log:        sink,
		Dispatcher: NewDispatcher(log.Named("dispatcher"), sink, status),
	}
}

// HandleFrame dispatches every event in an inbound frame in order.
func (s *Session) HandleFrame(frame []byte) {
	s.Dispatcher.DispatchFrame(frame)
}

// HandleClosed reports a closed or failed channel.
func (s *Session) HandleClosed() {
	s.Status.Closed()
	s.Log.Append(LogEntry{Text: closedMessage, IsError: true})
}

// HandleUnsupported reports that no channel can be opened for this session.
func (s *Session) HandleUnsupported() {
	s.Log.Append(LogEntry{Text: unsupportedMessage})
}

func (s *Session) Presentation() Presentation { return s.Status.Presentation() }

func (s *Session) Entries() []LogEntry { return s.Log.Entries() }
