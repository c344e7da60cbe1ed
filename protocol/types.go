package protocol

// Target selects who a command is addressed to.
type Target string

const (
	// TargetWrapper addresses the supervisor's lifecycle controls.
	TargetWrapper Target = "WRAPPER"
	// TargetServer addresses the supervised process's stdin.
	TargetServer Target = "SERVER"
)

func (t Target) Valid() bool {
	switch t {
	case TargetWrapper, TargetServer:
		return true
	}
	return false
}

// EventType tags an inbound event.
// Values outside the known set are legal on the wire and are left for the consumer to handle.
type EventType string

const (
	EventLog   EventType = "LOG"
	EventError EventType = "ERROR"
	EventState EventType = "STATE"
)

func (t EventType) Valid() bool {
	switch t {
	case EventLog, EventError, EventState:
		return true
	}
	return false
}

// Lifecycle payloads carried by STATE events.
const (
	StateStarting = "starting"
	StateOnline   = "online"
	StateStopping = "stopping"
	StateOffline  = "offline"
)

// Lifecycle payloads carried by WRAPPER commands.
const (
	WrapperStart   = "start"
	WrapperRestart = "restart"
	WrapperStop    = "stop"
)

// Command is a single client->server message.
type Command struct {
	Target  Target `json:"target"`
	Payload string `json:"payload"`
}

// Event is a single server->client message.
type Event struct {
	Type    EventType `json:"type"`
	Payload string    `json:"payload"`
}
