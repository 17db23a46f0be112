package bridge

import (
	"fmt"
	"time"
)

// EventKind tells apart the activity the forwarding loop reports.
type EventKind int

const (
	EventForwarded EventKind = iota
	EventInvalidFrame
	EventReceived
	EventReconnecting
	EventReconnected
	EventReconnectFailed
)

func (k EventKind) String() string {
	switch k {
	case EventForwarded:
		return "forwarded"
	case EventInvalidFrame:
		return "invalid_frame"
	case EventReceived:
		return "received"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnected:
		return "reconnected"
	case EventReconnectFailed:
		return "reconnect_failed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one observation of loop activity.
type Event struct {
	Kind    EventKind
	Payload string // Line or message text, if any.
	LinkID  string
	Err     error         // Set for EventInvalidFrame and EventReconnectFailed.
	Delay   time.Duration // Backoff before the next attempt, for EventReconnectFailed.
}

// Human readable status line.
func (e Event) String() string {
	switch e.Kind {
	case EventForwarded:
		return "Forwarded: " + e.Payload
	case EventInvalidFrame:
		return "Invalid JSON from Arduino: " + e.Payload
	case EventReceived:
		return "Received from server: " + e.Payload
	case EventReconnecting:
		return "WebSocket connection closed. Reconnecting..."
	case EventReconnected:
		return "Reconnected!"
	case EventReconnectFailed:
		return fmt.Sprintf("Reconnection failed. Retrying in %v...", e.Delay)
	}
	return e.Kind.String()
}

// Observer receives every event, on the loop goroutine.
type Observer func(Event)
