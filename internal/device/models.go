package device

import "fmt"

// ConnectionState is how the session sees a device right now.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
	Busy
)

func (c ConnectionState) String() string {
	switch c {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Busy:
		return "Busy"
	default:
		return fmt.Sprintf("ConnectionState(%d)", c)
	}
}

// Target is a device reported by the transport.
type Target struct {
	Serial     string
	Model      string
	Product    string
	State      string // raw adb state: device, offline, unauthorized, ...
	Connection ConnectionState
	// Installable is set when the device accepts package installs.
	Installable bool
}

// Label is the name shown to the operator.
func (t Target) Label() string {
	if t.Model != "" {
		return fmt.Sprintf("%s (%s)", t.Model, t.Serial)
	}
	return t.Serial
}

// Eligible reports whether an install can be started against t now.
func (t Target) Eligible() bool {
	return t.Installable && t.Connection == Connected
}

// Stage is the phase of a running install.
type Stage int

const (
	StagePushing Stage = iota
	StageInstalling
)

func (s Stage) String() string {
	switch s {
	case StagePushing:
		return "Pushing"
	case StageInstalling:
		return "Installing"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// EventKind identifies an install event.
type EventKind int

const (
	EventStage EventKind = iota
	EventPushProgress
	EventSucceeded
	EventFailed
	EventCancelled
)

// Terminal reports whether k ends an install.
func (k EventKind) Terminal() bool {
	return k == EventSucceeded || k == EventFailed || k == EventCancelled
}

func (k EventKind) String() string {
	switch k {
	case EventStage:
		return "Stage"
	case EventPushProgress:
		return "PushProgress"
	case EventSucceeded:
		return "Succeeded"
	case EventFailed:
		return "Failed"
	case EventCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Event is emitted by an Install.
type Event struct {
	Kind   EventKind
	Stage  Stage
	Sent   int64
	Total  int64
	Output string
	Err    *InstallError
}
