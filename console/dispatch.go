package console

import (
	"github.com/guseggert/wrapperconsole/protocol"
	"go.uber.org/zap"
)

// Dispatcher routes decoded events to the log sink or the status machine.
type Dispatcher struct {
	log    *zap.SugaredLogger
	sink   *LogSink
	status *StatusMachine
}

func NewDispatcher(log *zap.SugaredLogger, sink *LogSink, status *StatusMachine) *Dispatcher {
	return &Dispatcher{log: log, sink: sink, status: status}
}

// Dispatch handles a single event.
func (d *Dispatcher) Dispatch(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventLog:
		d.sink.Append(LogEntry{Text: ev.Payload})
	case protocol.EventError:
		d.sink.Append(LogEntry{Text: ev.Payload, IsError: true})
	case protocol.EventState:
		d.status.SetLabel(ev.Payload)
		if !d.status.Transition(ev.Payload) {
			d.log.Debugw("ignoring unrecognized state", "Payload", ev.Payload)
		}
	default:
		d.log.Warnw("unknown event type", "Type", string(ev.Type), "Payload", ev.Payload)
	}
}

// DispatchFrame decodes a frame and dispatches its events left to right.
// Lines that fail to decode are reported on the developer log and skipped.
func (d *Dispatcher) DispatchFrame(frame []byte) {
	for ev, err := range protocol.DecodeFrame(frame) {
		if err != nil {
			d.log.Warnw("dropping malformed event", "Error", err)
			continue
		}
		d.Dispatch(ev)
	}
}
