package session

import (
	"encoding/json"
	"errors"

	"github.com/agentjido/jido-shell/shellerr"
)

// Stream is the stream tag carried by every session event.
const Stream = "session"

// EventKind enumerates the session event vocabulary. The set and its
// meaning are stable across backends.
type EventKind string

const (
	EventCommandStarted   EventKind = "command_started"
	EventOutput           EventKind = "output"
	EventCwdChanged       EventKind = "cwd_changed"
	EventError            EventKind = "error"
	EventCommandDone      EventKind = "command_done"
	EventCommandCancelled EventKind = "command_cancelled"
	EventCommandCrashed   EventKind = "command_crashed"
)

// Terminal reports whether k ends a command line's event sequence.
func (k EventKind) Terminal() bool {
	switch k {
	case EventCommandDone, EventCommandCancelled, EventCommandCrashed:
		return true
	}
	return false
}

// Event is one message published to session subscribers.
type Event struct {
	Stream    string          `json:"stream"`
	SessionID string          `json:"session_id"`
	Kind      EventKind       `json:"kind"`
	Line      string          `json:"line,omitempty"`   // command_started
	Chunk     string          `json:"chunk,omitempty"`  // output
	Path      string          `json:"path,omitempty"`   // cwd_changed
	Err       *shellerr.Error `json:"error,omitempty"`  // error
	Reason    string          `json:"reason,omitempty"` // command_crashed
}

// MarshalWire serialises the event for the subscriber boundary.
func (e Event) MarshalWire() ([]byte, error) {
	return json.Marshal(e)
}

// Subscriber is a delivery target for session events.
//
// Deliver must not block: a subscriber that cannot keep up or whose
// target has disappeared returns an error and is removed from the
// session's set. Events are delivered in publish order to every
// subscriber that stays subscribed.
type Subscriber interface {
	Deliver(ev Event) error
}

// ChannelSubscriber adapts a buffered channel to the Subscriber
// interface with non-blocking sends.
type ChannelSubscriber struct {
	C chan Event
}

// NewChannelSubscriber creates a subscriber with the given buffer.
func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	return &ChannelSubscriber{C: make(chan Event, buffer)}
}

// Deliver enqueues ev, failing when the buffer is full.
func (s *ChannelSubscriber) Deliver(ev Event) error {
	select {
	case s.C <- ev:
		return nil
	default:
		return errFull
	}
}

var errFull = errors.New("subscriber buffer full")
