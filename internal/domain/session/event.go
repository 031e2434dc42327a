package session

import (
	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/domain/fusion"
)

// EventKind identifies a session lifecycle or update event.
type EventKind int

const (
	// EventConnecting is emitted when a connect attempt loop starts.
	EventConnecting EventKind = iota
	// EventConnected is emitted on a successful connect, including the
	// idempotent re-affirmation when connect is called while connected.
	EventConnected
	// EventDisconnected is emitted after a deliberate disconnect.
	EventDisconnected
	// EventAuthError is emitted when pairing credentials are rejected.
	EventAuthError
	// EventAddressChanged is emitted when rediscovery detects address drift.
	EventAddressChanged
	// EventUpdate carries a non-empty attribute diff.
	EventUpdate
)

var eventNames = map[EventKind]string{
	EventConnecting:     "connecting",
	EventConnected:      "connected",
	EventDisconnected:   "disconnected",
	EventAuthError:      "auth_error",
	EventAddressChanged: "address_changed",
	EventUpdate:         "update",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a notification from one device session.
type Event struct {
	Kind     EventKind
	DeviceID string
	// Address carries the new target for EventAddressChanged.
	Address string
	// Attributes carries the diff for EventUpdate.
	Attributes fusion.Attributes
}

// Handler consumes session events. It is invoked from the session's own
// event loop and must not block.
type Handler func(Event)

// eventQueueSize bounds the callback hand-off queue. The remote client and
// companion poller deliver callbacks from their own goroutines; they are
// marshalled through this queue onto the session loop, which is the only
// goroutine touching fusion and publish state.
const eventQueueSize = 64

func (s *Session) enqueue(fn func()) {
	select {
	case s.queue <- fn:
	default:
		log.Warn().Str("device", s.logID()).Msg("Session event queue full, dropping update")
	}
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.queue:
			fn()
		case <-s.done:
			return
		}
	}
}
