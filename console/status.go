package console

import (
	"github.com/guseggert/wrapperconsole/protocol"
)

// State is the supervised process's lifecycle as seen by the console.
type State int

const (
	StateNotConnected State = iota
	StateStarting
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return protocol.StateStarting
	case StateOnline:
		return protocol.StateOnline
	case StateOffline:
		return protocol.StateOffline
	}
	return notConnectedLabel
}

// Mode is the status indicator's visual state.
type Mode string

const (
	ModeStarting Mode = "starting"
	ModeOnline   Mode = "online"
	ModeOffline  Mode = "offline"
)

const notConnectedLabel = "not connected"

// Presentation is what the status indicator shows.
type Presentation struct {
	Mode  Mode
	Label string
}

// Present maps a state to its presentation mode.
// NotConnected and Offline share the offline mode.
func Present(s State) Mode {
	switch s {
	case StateStarting:
		return ModeStarting
	case StateOnline:
		return ModeOnline
	}
	return ModeOffline
}

// StatusMachine tracks the latest lifecycle state reported by STATE events.
// The zero value is not connected.
type StatusMachine struct {
	state State
	label string
}

func NewStatusMachine() *StatusMachine {
	return &StatusMachine{state: StateNotConnected, label: notConnectedLabel}
}

// Transition applies a STATE payload.
// Unrecognized payloads leave the state unchanged and return false.
func (m *StatusMachine) Transition(payload string) bool {
	switch payload {
	case protocol.StateStarting:
		m.state = StateStarting
	case protocol.StateOnline:
		m.state = StateOnline
	case protocol.StateStopping, protocol.StateOffline:
		m.state = StateOffline
	default:
		return false
	}
	return true
}

// SetLabel replaces the human-readable label without touching the state.
func (m *StatusMachine) SetLabel(label string) {
	m.label = label
}

// Closed moves the machine to the not-connected state.
func (m *StatusMachine) Closed() {
	m.state = StateNotConnected
	m.label = notConnectedLabel
}

func (m *StatusMachine) State() State { return m.state }

func (m *StatusMachine) Presentation() Presentation {
	label := m.label
	if label == "" && m.state == StateNotConnected {
		label = notConnectedLabel
	}
	return Presentation{Mode: Present(m.state), Label: label}
}
