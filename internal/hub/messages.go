package hub

import (
	"github.com/google/uuid"

	"github.com/halma/sternd/internal/board"
)

// Inbound is a message from a client actor to the hub. The per-direction
// channels are FIFO; the hub is the only reader.
type Inbound interface{ inbound() }

// Choice is a movement selection by index into the most recent Turn.
type Choice struct {
	Player board.Player
	Index  uint
}

// Gone reports socket loss. The seat stays reserved for reconnection.
type Gone struct {
	Player board.Player
}

func (Choice) inbound() {}
func (Gone) inbound()   {}

// Joined is the hub's answer to a successful Hello or Reconnect: the seat,
// its session token, and the channel pair the actor pumps.
type Joined struct {
	Player    board.Player
	SessionID uuid.UUID
	Outbox    <-chan interface{}
	Inbox     chan<- Inbound
}

// admission requests, internal to the hub/actor pair.

type admitRequest interface{ admit() }

type helloRequest struct {
	reply chan admitReply
}

type reconnectRequest struct {
	sessionID uuid.UUID
	reply     chan admitReply
}

// sessionExpired is injected by the registry when a disconnected seat's
// grace window elapses.
type sessionExpired struct {
	sessionID uuid.UUID
	player    board.Player
}

func (helloRequest) admit()     {}
func (reconnectRequest) admit() {}
func (sessionExpired) admit()   {}

type admitReply struct {
	joined Joined
	err    error
}
