// Package hub implements the single authoritative game task. The hub owns
// the board, the turn state, and both player seats; client actors reach it
// exclusively through channels. No game state is ever shared under a lock.
package hub

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halma/sternd/internal/board"
	"github.com/halma/sternd/internal/protocol"
	"github.com/halma/sternd/internal/session"
)

const channelCapacity = 32

// ErrServerFull is returned to a Hello when both seats are taken.
var ErrServerFull = errors.New("server full")

// Unlimited disables the turn cap.
const Unlimited = math.MaxInt

// Config carries the game parameters the hub enforces.
type Config struct {
	// MaxTurns ends the game with a MaxTurns result once reached. Zero is
	// valid and ends the game immediately after both players connect.
	// The reconnection grace window lives in the session registry; its
	// expiry reaches the hub as a forfeit event.
	MaxTurns int
}

// Recorder archives finished games. Implementations must be safe to call
// from the hub goroutine exactly once per game.
type Recorder interface {
	RecordResult(result protocol.GameResult, history []board.Movement, started, finished time.Time) error
}

type slot struct {
	player    board.Player
	sessionID uuid.UUID
	outbox    chan interface{}
	connected bool
	lastSeen  time.Time
}

// Hub is the game actor. Construct with New and drive with Run; all other
// exported methods are channel-backed and safe from any goroutine.
type Hub struct {
	cfg      Config
	log      *logrus.Logger
	registry *session.Registry
	recorder Recorder

	admit chan admitRequest
	inbox chan Inbound

	game            *board.Game
	pending         []board.Movement
	slots           [board.PlayerCount]*slot
	started         bool
	finished        bool
	turnOutstanding bool
	passes          int
	startedAt       time.Time

	meter turnMeter

	done chan struct{}
}

// New creates a hub bound to a session registry. recorder may be nil.
func New(cfg Config, registry *session.Registry, recorder Recorder, log *logrus.Logger) *Hub {
	h := &Hub{
		cfg:      cfg,
		log:      log,
		registry: registry,
		recorder: recorder,
		admit:    make(chan admitRequest, 8),
		inbox:    make(chan Inbound, channelCapacity),
		game:     board.NewGame(),
		meter:    newTurnMeter(64),
		done:     make(chan struct{}),
	}
	registry.OnExpire(h.notifyExpired)
	return h
}

// Done is closed when the game has been finalized and the hub has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Join asks the hub for a free seat on behalf of a Hello.
func (h *Hub) Join(ctx context.Context) (Joined, error) {
	return h.request(ctx, helloRequest{reply: make(chan admitReply, 1)})
}

// Rejoin asks the hub to rebind an existing session on behalf of a
// Reconnect. Fails with session.ErrUnknownSession or session.ErrSessionBusy.
func (h *Hub) Rejoin(ctx context.Context, sessionID uuid.UUID) (Joined, error) {
	return h.request(ctx, reconnectRequest{sessionID: sessionID, reply: make(chan admitReply, 1)})
}

func (h *Hub) request(ctx context.Context, req admitRequest) (Joined, error) {
	var reply chan admitReply
	switch r := req.(type) {
	case helloRequest:
		reply = r.reply
	case reconnectRequest:
		reply = r.reply
	}

	select {
	case h.admit <- req:
	case <-h.done:
		return Joined{}, ErrServerFull
	case <-ctx.Done():
		return Joined{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.joined, r.err
	case <-h.done:
		// The hub may have answered and exited in the same breath; prefer
		// the answer.
		select {
		case r := <-reply:
			return r.joined, r.err
		default:
		}
		return Joined{}, ErrServerFull
	case <-ctx.Done():
		return Joined{}, ctx.Err()
	}
}

// notifyExpired runs on the registry's janitor goroutine; hand the event to
// the hub loop without ever blocking the janitor.
func (h *Hub) notifyExpired(id uuid.UUID, p board.Player) {
	select {
	case h.admit <- sessionExpired{sessionID: id, player: p}:
	default:
	}
}

// Run drives the hub until the game ends or ctx is cancelled. It is the
// only goroutine that touches game state.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.teardown()

	h.log.Info("hub waiting for players")

	for !h.finished {
		select {
		case <-ctx.Done():
			h.log.Info("hub cancelled, aborting game")
			h.abort()
			return
		case req := <-h.admit:
			h.handleAdmit(req)
		case msg := <-h.inbox:
			h.handleInbound(msg)
		}
	}
}

// handleAdmit serves Hello, Reconnect, and grace-expiry events.
func (h *Hub) handleAdmit(req admitRequest) {
	switch r := req.(type) {
	case helloRequest:
		r.reply <- h.handleHello()
	case reconnectRequest:
		r.reply <- h.handleReconnect(r.sessionID)
	case sessionExpired:
		h.handleExpired(r)
	}
}

func (h *Hub) handleHello() admitReply {
	var free *slot
	for p := board.Player1; p <= board.Player2; p++ {
		if h.slots[p] == nil {
			free = &slot{player: p}
			h.slots[p] = free
			break
		}
	}
	if free == nil {
		// Both seats allocated. A disconnected seat is reserved for its
		// session, not up for grabs by a fresh Hello.
		h.log.Warn("rejecting hello: server full")
		return admitReply{err: ErrServerFull}
	}

	free.sessionID = h.registry.Create(free.player)
	free.outbox = make(chan interface{}, channelCapacity)
	free.connected = true
	free.lastSeen = time.Now()

	h.log.WithFields(logrus.Fields{
		"player":  free.player,
		"session": free.sessionID,
	}).Info("player joined")

	reply := admitReply{joined: Joined{
		Player:    free.player,
		SessionID: free.sessionID,
		Outbox:    free.outbox,
		Inbox:     h.inbox,
	}}

	h.maybeStart()
	return reply
}

func (h *Hub) handleReconnect(sessionID uuid.UUID) admitReply {
	player, err := h.registry.Rebind(sessionID)
	if err != nil {
		h.log.WithField("session", sessionID).Warnf("rejecting reconnect: %v", err)
		return admitReply{err: err}
	}

	s := h.slots[player]
	if s == nil || s.sessionID != sessionID {
		// Registry and hub disagree; treat as unknown rather than guess.
		h.log.WithField("session", sessionID).Error("session has no seat")
		return admitReply{err: session.ErrUnknownSession}
	}

	// Swap in a fresh outbox. The old actor is gone; anything left on the
	// old channel was undeliverable. Closing it lets a lingering write pump
	// wind down.
	if s.outbox != nil {
		close(s.outbox)
	}
	s.outbox = make(chan interface{}, channelCapacity)
	s.connected = true
	s.lastSeen = time.Now()

	h.log.WithFields(logrus.Fields{
		"player":  player,
		"session": sessionID,
	}).Info("player reconnected")

	reply := admitReply{joined: Joined{
		Player:    player,
		SessionID: sessionID,
		Outbox:    s.outbox,
		Inbox:     h.inbox,
	}}

	if h.started {
		// Re-send the outstanding turn: the client may have missed it.
		if player == h.game.Current() {
			h.sendTurn()
		}
	} else {
		h.maybeStart()
	}
	return reply
}

func (h *Hub) handleExpired(e sessionExpired) {
	s := h.slots[e.player]
	if s == nil || s.sessionID != e.sessionID || s.connected {
		return
	}

	if !h.started {
		// No game to forfeit yet; free the seat for a new Hello.
		h.log.WithField("player", e.player).Info("session expired before start, freeing seat")
		close(s.outbox)
		h.slots[e.player] = nil
		return
	}

	winner := e.player.Opponent()
	h.log.WithFields(logrus.Fields{
		"player": e.player,
		"winner": winner,
	}).Warn("reconnect grace elapsed, game forfeited")
	h.finish(protocol.NewFinished(winner, h.game.Turns(), h.game.Scores()))
}

// maybeStart kicks off the game once both seats are connected for the first
// time.
func (h *Hub) maybeStart() {
	if h.started {
		return
	}
	for p := board.Player1; p <= board.Player2; p++ {
		if h.slots[p] == nil || !h.slots[p].connected {
			return
		}
	}

	h.started = true
	h.startedAt = time.Now()
	h.log.WithField("max_turns", h.cfg.MaxTurns).Info("both players connected, game on")
	h.advance()
}

// handleInbound processes choices and socket-loss notes from client actors.
func (h *Hub) handleInbound(msg Inbound) {
	switch m := msg.(type) {
	case Gone:
		h.handleGone(m.Player)
	case Choice:
		h.handleChoice(m)
	}
}

func (h *Hub) handleGone(p board.Player) {
	s := h.slots[p]
	if s == nil || !s.connected {
		return
	}
	s.connected = false
	s.lastSeen = time.Now()
	h.registry.MarkDisconnected(s.sessionID)

	if h.started && p == h.game.Current() {
		// Pause the turn loop; the outstanding turn is re-sent on rebind.
		h.turnOutstanding = false
		h.log.WithField("player", p).Warn("current player disconnected, game paused")
	} else {
		h.log.WithField("player", p).Info("player disconnected")
	}
}

func (h *Hub) handleChoice(c Choice) {
	if !h.started || c.Player != h.game.Current() || !h.turnOutstanding {
		h.log.WithField("player", c.Player).Warn("choice out of turn")
		h.dropForViolation(c.Player)
		return
	}
	if c.Index >= uint(len(h.pending)) {
		h.log.WithFields(logrus.Fields{
			"player": c.Player,
			"index":  c.Index,
			"moves":  len(h.pending),
		}).Warn("choice index out of range")
		h.dropForViolation(c.Player)
		return
	}

	movement := h.pending[c.Index]
	if err := h.game.Apply(movement); err != nil {
		// The client picked from our own list; a failure here is an engine
		// bug. Abort rather than continue from a corrupt position.
		h.log.WithError(err).Error("illegal move from enumerated list, aborting game")
		h.abort()
		return
	}
	h.turnOutstanding = false
	h.meter.update(h.game.Turns(), h.log)

	h.broadcast(protocol.NewMovement(c.Player, movement, h.game.Scores()))
	h.advance()
}

// dropForViolation disconnects the offender only; the seat stays reservable.
func (h *Hub) dropForViolation(p board.Player) {
	s := h.slots[p]
	if s == nil || !s.connected {
		return
	}
	h.send(s, protocol.NewDisconnect())
	s.connected = false
	s.lastSeen = time.Now()
	h.registry.MarkDisconnected(s.sessionID)
	if h.started && p == h.game.Current() {
		h.turnOutstanding = false
	}
}

// advance evaluates termination and hands the turn to the next player. It
// loops only through passes (turns with no legal move).
func (h *Hub) advance() {
	for {
		if winner, ok := h.game.Winner(); ok {
			h.finish(protocol.NewFinished(winner, h.game.Turns(), h.game.Scores()))
			return
		}
		if h.game.Turns() >= h.cfg.MaxTurns {
			h.finish(protocol.NewMaxTurns(h.game.Turns(), h.game.Scores()))
			return
		}

		h.pending = h.game.Moves()
		if len(h.pending) == 0 {
			h.passes++
			if h.passes >= board.PlayerCount {
				// Neither player can move; call it at the cap result.
				h.finish(protocol.NewMaxTurns(h.game.Turns(), h.game.Scores()))
				return
			}
			h.log.WithField("player", h.game.Current()).Warn("no legal moves, passing turn")
			h.game.Pass()
			continue
		}
		h.passes = 0
		h.sendTurn()
		return
	}
}

// sendTurn delivers the pending move list to the current player if their
// seat is connected; otherwise the game stays paused until rebind.
func (h *Hub) sendTurn() {
	s := h.slots[h.game.Current()]
	if s == nil || !s.connected {
		h.turnOutstanding = false
		return
	}
	h.send(s, protocol.NewTurn(h.pending))
	h.turnOutstanding = true
}

// send enqueues one message on a seat's outbox. A client too slow to drain
// its outbox is treated as gone; the seat stays reservable.
func (h *Hub) send(s *slot, msg interface{}) {
	if !s.connected {
		return
	}
	select {
	case s.outbox <- msg:
	default:
		h.log.WithField("player", s.player).Warn("outbox full, dropping connection")
		s.connected = false
		h.registry.MarkDisconnected(s.sessionID)
	}
}

// broadcast fans a message out to both seats. Each outbox individually
// preserves FIFO; cross-seat ordering is unspecified.
func (h *Hub) broadcast(msg interface{}) {
	for _, s := range h.slots {
		if s != nil {
			h.send(s, msg)
		}
	}
}

// finish broadcasts the result and marks the game over; teardown closes the
// outboxes once Run unwinds.
func (h *Hub) finish(msg protocol.GameFinished) {
	h.log.WithFields(logrus.Fields{
		"result": msg.Result.Type,
		"winner": msg.Result.Winner,
		"turns":  msg.Result.TotalTurns,
	}).Info("game finished")

	h.broadcast(msg)
	h.finished = true

	if h.recorder != nil {
		if err := h.recorder.RecordResult(msg.Result, h.game.History(), h.startedAt, time.Now()); err != nil {
			h.log.WithError(err).Error("failed to archive game result")
		}
	}
}

// abort ends the game on an internal failure: a polite goodbye to both
// clients, no result.
func (h *Hub) abort() {
	h.broadcast(protocol.NewDisconnect())
	h.finished = true
}

// teardown releases sessions and closes the outboxes so actors drain and
// exit.
func (h *Hub) teardown() {
	for p, s := range h.slots {
		if s == nil {
			continue
		}
		h.registry.Release(s.sessionID)
		close(s.outbox)
		h.slots[p] = nil
	}
}
