package transfer

// EventKind identifies a download event.
type EventKind int

const (
	// EventProgress reports bytes transferred so far.
	EventProgress EventKind = iota
	// EventCompleted carries the local path of the finished file.
	EventCompleted
	// EventFailed carries a Transport *Error.
	EventFailed
	// EventCancelled carries a Cancelled *Error.
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "Progress"
	case EventCompleted:
		return "Completed"
	case EventFailed:
		return "Failed"
	case EventCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether k ends a download.
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is emitted by a Download. Total is zero when the size is unknown.
type Event struct {
	Kind        EventKind
	Transferred int64
	Total       int64
	Path        string
	Err         *Error
}
