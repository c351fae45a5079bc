// Package client implements the per-connection actor. Each accepted socket
// gets one actor that performs the handshake, then bridges wire frames to
// the hub's channels until either side goes away. The actor never touches
// game state; it only shuttles messages.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halma/sternd/internal/debug"
	"github.com/halma/sternd/internal/hub"
	"github.com/halma/sternd/internal/protocol"
	"github.com/halma/sternd/internal/session"
	"github.com/halma/sternd/internal/transport"
)

// Config bounds a connection's lifecycle.
type Config struct {
	// HandshakeTimeout caps the wait for the single handshake message.
	HandshakeTimeout time.Duration
	// IdleTimeout caps how long an inactive connection may persist.
	IdleTimeout time.Duration
	// LogMessages dumps every message crossing this connection to the log.
	LogMessages bool
}

// Actor owns one socket for its lifetime.
type Actor struct {
	conn transport.MessageConn
	hub  *hub.Hub
	cfg  Config
	log  *logrus.Logger

	// stop is closed when the read side exits so the write pump does not
	// linger on an outbox that will only close at game end.
	stop chan struct{}
}

// New creates an actor for an accepted connection.
func New(conn transport.MessageConn, h *hub.Hub, cfg Config, log *logrus.Logger) *Actor {
	return &Actor{
		conn: conn,
		hub:  h,
		cfg:  cfg,
		log:  log,
		stop: make(chan struct{}),
	}
}

// Run drives the connection through handshake and the active pump. It
// returns when the socket is gone; the seat, if any, stays reserved in the
// registry for reconnection.
func (a *Actor) Run(ctx context.Context) {
	defer a.conn.Close()

	joined, ok := a.handshake(ctx)
	if !ok {
		return
	}

	log := a.log.WithFields(logrus.Fields{
		"player": joined.Player,
		"remote": a.conn.RemoteAddr(),
	})
	log.Info("connection active")

	go a.writePump(joined)
	a.readPump(joined, log)
}

// handshake reads exactly one message and resolves it to a seat. Anything
// but a well-formed Hello or Reconnect is rejected.
func (a *Actor) handshake(ctx context.Context) (hub.Joined, bool) {
	// The idle timeout bounds the handshake as well when it is the shorter.
	deadline := a.cfg.HandshakeTimeout
	if a.cfg.IdleTimeout > 0 && a.cfg.IdleTimeout < deadline {
		deadline = a.cfg.IdleTimeout
	}
	_ = a.conn.SetReadDeadline(time.Now().Add(deadline))

	payload, err := a.conn.ReadMessage()
	if err != nil {
		a.log.WithField("remote", a.conn.RemoteAddr()).Warnf("handshake read failed: %v", err)
		return hub.Joined{}, false
	}

	msg, err := protocol.DecodeClient(payload)
	if err != nil {
		a.log.WithField("remote", a.conn.RemoteAddr()).Warnf("handshake decode failed: %v", err)
		a.reject(protocol.ReasonProtocol)
		return hub.Joined{}, false
	}

	if a.cfg.LogMessages {
		debug.DumpMessage(a.log, "recv", a.conn.RemoteAddr(), msg)
	}

	switch m := msg.(type) {
	case protocol.Hello:
		joined, err := a.hub.Join(ctx)
		if err != nil {
			a.reject(protocol.ReasonServerFull)
			return hub.Joined{}, false
		}
		return a.confirm(joined)

	case protocol.Reconnect:
		id, err := uuid.Parse(m.SessionID)
		if err != nil {
			a.reject(protocol.ReasonProtocol)
			return hub.Joined{}, false
		}
		joined, err := a.hub.Rejoin(ctx, id)
		if err != nil {
			a.reject(rejectReason(err))
			return hub.Joined{}, false
		}
		return a.confirm(joined)
	}

	// A Choice before the handshake is a protocol error.
	a.reject(protocol.ReasonProtocol)
	return hub.Joined{}, false
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return protocol.ReasonUnknownSession
	case errors.Is(err, session.ErrSessionBusy):
		return protocol.ReasonSessionBusy
	case errors.Is(err, hub.ErrServerFull):
		return protocol.ReasonServerFull
	}
	return protocol.ReasonProtocol
}

func (a *Actor) reject(reason string) {
	a.write(protocol.NewReject(reason))
}

// confirm acknowledges a granted seat. If the welcome cannot be delivered
// the seat has to be handed back as disconnected, not left dangling as live.
func (a *Actor) confirm(joined hub.Joined) (hub.Joined, bool) {
	if err := a.write(protocol.NewWelcome(joined.SessionID.String(), joined.Player)); err != nil {
		a.notifyGone(joined)
		return hub.Joined{}, false
	}
	return joined, true
}

func (a *Actor) write(msg interface{}) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	if a.cfg.LogMessages {
		debug.DumpMessage(a.log, "send", a.conn.RemoteAddr(), msg)
	}
	return a.conn.WriteMessage(data)
}

// readPump forwards Choice messages to the hub until the socket dies or the
// client violates the protocol. On exit the hub is told the seat is gone but
// the session is not released: reconnection may rebind it.
func (a *Actor) readPump(joined hub.Joined, log *logrus.Entry) {
	defer close(a.stop)
	defer a.notifyGone(joined)

	for {
		_ = a.conn.SetReadDeadline(time.Now().Add(a.cfg.IdleTimeout))
		payload, err := a.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrUnexpectedFrameKind) {
				log.Warnf("dropping connection: %v", err)
				a.write(protocol.NewDisconnect())
			} else {
				log.Infof("connection lost: %v", err)
			}
			return
		}

		msg, err := protocol.DecodeClient(payload)
		if err != nil {
			log.Warnf("dropping connection: %v", err)
			a.write(protocol.NewDisconnect())
			return
		}

		if a.cfg.LogMessages {
			debug.DumpMessage(a.log, "recv", a.conn.RemoteAddr(), msg)
		}

		choice, ok := msg.(protocol.Choice)
		if !ok {
			// Only Choice is legal after the handshake.
			log.Warnf("dropping connection: unexpected %T mid-game", msg)
			a.write(protocol.NewDisconnect())
			return
		}

		select {
		case joined.Inbox <- hub.Choice{Player: joined.Player, Index: choice.MovementIndex}:
		case <-a.hub.Done():
			return
		}
	}
}

// writePump serializes hub messages onto the wire. A Disconnect from the
// hub, or the hub closing the outbox at game end, terminates the
// connection.
func (a *Actor) writePump(joined hub.Joined) {
	defer a.conn.Close()

	for {
		select {
		case msg, ok := <-joined.Outbox:
			if !ok {
				// Game over: polite goodbye after the final broadcast.
				_ = a.write(protocol.NewDisconnect())
				return
			}
			if err := a.write(msg); err != nil {
				a.log.Warnf("write to %s failed: %v", a.conn.RemoteAddr(), err)
				return
			}
			if _, isDisconnect := msg.(protocol.Disconnect); isDisconnect {
				return
			}
		case <-a.stop:
			return
		}
	}
}

// notifyGone reports socket loss to the hub unless it has already exited.
func (a *Actor) notifyGone(joined hub.Joined) {
	select {
	case joined.Inbox <- hub.Gone{Player: joined.Player}:
	case <-a.hub.Done():
	}
}
