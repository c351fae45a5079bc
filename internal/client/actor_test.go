package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halma/sternd/internal/board"
	"github.com/halma/sternd/internal/hub"
	"github.com/halma/sternd/internal/protocol"
	"github.com/halma/sternd/internal/session"
	"github.com/halma/sternd/internal/transport"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func startHub(t *testing.T, cfg hub.Config) *hub.Hub {
	t.Helper()
	h := hub.New(cfg, session.NewRegistry(0), nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

// testConn is the remote end of a connection served by a real actor.
type testConn struct {
	t    *testing.T
	conn *transport.StreamConn
}

// dial wires a net.Pipe to a fresh actor and returns the client side.
func dial(t *testing.T, h *hub.Hub, cfg Config) *testConn {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})

	actor := New(transport.NewStreamConn(server, 0), h, cfg, testLogger())
	go actor.Run(context.Background())

	return &testConn{t: t, conn: transport.NewStreamConn(client, 0)}
}

func defaultConfig() Config {
	return Config{
		HandshakeTimeout: 2 * time.Second,
		IdleTimeout:      5 * time.Second,
	}
}

func (c *testConn) send(msg interface{}) {
	c.t.Helper()
	data, err := protocol.Marshal(msg)
	if err != nil {
		c.t.Fatalf("Marshal: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.conn.WriteMessage(data) }()
	select {
	case err := <-done:
		if err != nil {
			c.t.Fatalf("WriteMessage: %v", err)
		}
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out writing message")
	}
}

func (c *testConn) recv() interface{} {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("ReadMessage: %v", err)
	}
	msg, err := protocol.DecodeServer(payload)
	if err != nil {
		c.t.Fatalf("DecodeServer: %v", err)
	}
	return msg
}

// recvClosed asserts the connection ends instead of delivering a message.
func (c *testConn) recvClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if payload, err := c.conn.ReadMessage(); err == nil {
		c.t.Fatalf("expected closed connection, read %x", payload)
	}
}

func (c *testConn) welcome() protocol.Welcome {
	c.t.Helper()
	msg := c.recv()
	w, ok := msg.(protocol.Welcome)
	if !ok {
		c.t.Fatalf("expected Welcome, got %#v", msg)
	}
	return w
}

func (c *testConn) turn() protocol.Turn {
	c.t.Helper()
	msg := c.recv()
	turn, ok := msg.(protocol.Turn)
	if !ok {
		c.t.Fatalf("expected Turn, got %#v", msg)
	}
	return turn
}

func TestHandshakeAssignsSeats(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	a := dial(t, h, defaultConfig())
	a.send(protocol.NewHello())
	welcomeA := a.welcome()
	if welcomeA.Player != "player1" {
		t.Errorf("first welcome player = %q, want player1", welcomeA.Player)
	}
	if _, err := uuid.Parse(welcomeA.SessionID); err != nil {
		t.Errorf("session id %q is not a canonical UUID: %v", welcomeA.SessionID, err)
	}

	b := dial(t, h, defaultConfig())
	b.send(protocol.NewHello())
	if welcomeB := b.welcome(); welcomeB.Player != "player2" {
		t.Errorf("second welcome player = %q, want player2", welcomeB.Player)
	}

	// The first Turn goes to player1 only.
	if turn := a.turn(); len(turn.Movements) == 0 {
		t.Error("initial turn carries no movements")
	}
}

func TestFirstMoveBroadcast(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	a := dial(t, h, defaultConfig())
	a.send(protocol.NewHello())
	a.welcome()
	b := dial(t, h, defaultConfig())
	b.send(protocol.NewHello())
	b.welcome()

	turn := a.turn()
	a.send(protocol.NewChoice(0))

	for name, c := range map[string]*testConn{"a": a, "b": b} {
		msg := c.recv()
		mv, ok := msg.(protocol.Movement)
		if !ok {
			t.Fatalf("%s: expected Movement, got %#v", name, msg)
		}
		if mv.Player != "player1" || mv.Movement != turn.Movements[0] {
			t.Errorf("%s: movement = %+v, want player1 playing %v", name, mv, turn.Movements[0])
		}
	}

	if turn := b.turn(); len(turn.Movements) == 0 {
		t.Error("player2's turn carries no movements")
	}
}

func TestOutOfRangeChoiceThenReconnect(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	a := dial(t, h, defaultConfig())
	a.send(protocol.NewHello())
	welcomeA := a.welcome()
	b := dial(t, h, defaultConfig())
	b.send(protocol.NewHello())
	b.welcome()

	turn := a.turn()
	a.send(protocol.NewChoice(10000))

	if msg := a.recv(); msg != protocol.NewDisconnect() {
		t.Fatalf("expected Disconnect, got %#v", msg)
	}
	a.recvClosed()

	// Same session resumes on a fresh socket and the outstanding Turn is
	// re-sent.
	a2 := dial(t, h, defaultConfig())
	a2.send(protocol.NewReconnect(welcomeA.SessionID))
	welcome2 := a2.welcome()
	if welcome2.SessionID != welcomeA.SessionID {
		t.Errorf("reconnect session = %q, want %q", welcome2.SessionID, welcomeA.SessionID)
	}
	resent := a2.turn()
	if len(resent.Movements) != len(turn.Movements) {
		t.Errorf("re-sent turn has %d movements, want %d", len(resent.Movements), len(turn.Movements))
	}
}

func TestReconnectUnknownSessionRejected(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	c := dial(t, h, defaultConfig())
	c.send(protocol.NewReconnect(uuid.NewString()))
	msg := c.recv()
	reject, ok := msg.(protocol.Reject)
	if !ok {
		t.Fatalf("expected Reject, got %#v", msg)
	}
	if reject.Reason != protocol.ReasonUnknownSession {
		t.Errorf("reason = %q, want %q", reject.Reason, protocol.ReasonUnknownSession)
	}
}

func TestReconnectBusySessionRejected(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	a := dial(t, h, defaultConfig())
	a.send(protocol.NewHello())
	welcomeA := a.welcome()

	intruder := dial(t, h, defaultConfig())
	intruder.send(protocol.NewReconnect(welcomeA.SessionID))
	msg := intruder.recv()
	reject, ok := msg.(protocol.Reject)
	if !ok {
		t.Fatalf("expected Reject, got %#v", msg)
	}
	if reject.Reason != protocol.ReasonSessionBusy {
		t.Errorf("reason = %q, want %q", reject.Reason, protocol.ReasonSessionBusy)
	}
}

func TestThirdClientRejected(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	for _, player := range []string{"player1", "player2"} {
		c := dial(t, h, defaultConfig())
		c.send(protocol.NewHello())
		if w := c.welcome(); w.Player != player {
			t.Fatalf("welcome player = %q, want %q", w.Player, player)
		}
	}

	third := dial(t, h, defaultConfig())
	third.send(protocol.NewHello())
	msg := third.recv()
	reject, ok := msg.(protocol.Reject)
	if !ok {
		t.Fatalf("expected Reject, got %#v", msg)
	}
	if reject.Reason != protocol.ReasonServerFull {
		t.Errorf("reason = %q, want %q", reject.Reason, protocol.ReasonServerFull)
	}
	third.recvClosed()
}

func TestChoiceDuringHandshakeRejected(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	c := dial(t, h, defaultConfig())
	c.send(protocol.NewChoice(0))
	msg := c.recv()
	reject, ok := msg.(protocol.Reject)
	if !ok {
		t.Fatalf("expected Reject, got %#v", msg)
	}
	if reject.Reason != protocol.ReasonProtocol {
		t.Errorf("reason = %q, want %q", reject.Reason, protocol.ReasonProtocol)
	}
}

func TestHandshakeTimeoutClosesConnection(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: hub.Unlimited})

	cfg := defaultConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	c := dial(t, h, cfg)

	// Send nothing; the actor must give up on its own.
	c.recvClosed()
}

func TestGameFinishedDelivery(t *testing.T) {
	h := startHub(t, hub.Config{MaxTurns: 0})

	a := dial(t, h, defaultConfig())
	a.send(protocol.NewHello())
	a.welcome()
	b := dial(t, h, defaultConfig())
	b.send(protocol.NewHello())
	b.welcome()

	for name, c := range map[string]*testConn{"a": a, "b": b} {
		msg := c.recv()
		fin, ok := msg.(protocol.GameFinished)
		if !ok {
			t.Fatalf("%s: expected GameFinished, got %#v", name, msg)
		}
		if fin.Result.Type != protocol.ResultMaxTurns || fin.Result.TotalTurns != 0 {
			t.Errorf("%s: result = %+v, want immediate max_turns", name, fin.Result)
		}
		if fin.Result.Scores != [board.PlayerCount]uint{0, 0} {
			t.Errorf("%s: scores = %v, want [0 0]", name, fin.Result.Scores)
		}
		// The actor follows the final broadcast with a goodbye and closes.
		if msg := c.recv(); msg != protocol.NewDisconnect() {
			t.Errorf("%s: expected trailing Disconnect, got %#v", name, msg)
		}
		c.recvClosed()
	}
}
