// Package protocol defines the wire protocol shared by both transports: the
// CBOR message schema and the length-prefixed stream framing. Transports
// differ only in how frames are delimited; the payload bytes produced and
// consumed here are identical on TCP and WebSocket.
package protocol

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/halma/sternd/internal/board"
)

// Message type discriminators. Every message is a CBOR map with a string
// "type" entry and snake_case keys.
const (
	TypeHello        = "hello"
	TypeReconnect    = "reconnect"
	TypeChoice       = "choice"
	TypeWelcome      = "welcome"
	TypeReject       = "reject"
	TypeDisconnect   = "disconnect"
	TypeTurn         = "turn"
	TypeMovement     = "movement"
	TypeGameFinished = "game_finished"
)

// GameResult discriminators.
const (
	ResultFinished = "finished"
	ResultMaxTurns = "max_turns"
)

// Reject reasons surfaced to clients. Raw diagnostics never go on the wire.
const (
	ReasonServerFull     = "server full"
	ReasonUnknownSession = "unknown session"
	ReasonSessionBusy    = "session busy"
	ReasonProtocol       = "protocol"
)

// ErrDecode is returned when a payload is truncated, malformed, or carries
// an unknown type tag.
var ErrDecode = errors.New("malformed protocol message")

// Client -> server messages.

type Hello struct {
	Type string `cbor:"type"`
}

type Reconnect struct {
	Type      string `cbor:"type"`
	SessionID string `cbor:"session_id"`
}

type Choice struct {
	Type          string `cbor:"type"`
	MovementIndex uint   `cbor:"movement_index"`
}

// Server -> client messages.

// Welcome acknowledges a handshake. It carries the seat assignment so web
// clients can orient the board; the session id is the reconnection token.
type Welcome struct {
	Type      string `cbor:"type"`
	SessionID string `cbor:"session_id"`
	Player    string `cbor:"player"`
}

type Reject struct {
	Type   string `cbor:"type"`
	Reason string `cbor:"reason"`
}

type Disconnect struct {
	Type string `cbor:"type"`
}

type Turn struct {
	Type      string           `cbor:"type"`
	Movements []board.Movement `cbor:"movements"`
}

type Movement struct {
	Type     string                  `cbor:"type"`
	Player   string                  `cbor:"player"`
	Movement board.Movement          `cbor:"movement"`
	Scores   [board.PlayerCount]uint `cbor:"scores"`
}

type GameFinished struct {
	Type   string     `cbor:"type"`
	Result GameResult `cbor:"result"`
}

// GameResult is the tagged union carried by GameFinished: "finished" has a
// winner, "max_turns" does not.
type GameResult struct {
	Type       string                  `cbor:"type"`
	Winner     string                  `cbor:"winner,omitempty"`
	TotalTurns uint                    `cbor:"total_turns"`
	Scores     [board.PlayerCount]uint `cbor:"scores"`
}

// Constructors fill in the type tags so callers can't forget them.

func NewHello() Hello { return Hello{Type: TypeHello} }

func NewReconnect(sessionID string) Reconnect {
	return Reconnect{Type: TypeReconnect, SessionID: sessionID}
}

func NewChoice(index uint) Choice {
	return Choice{Type: TypeChoice, MovementIndex: index}
}

func NewWelcome(sessionID string, player board.Player) Welcome {
	return Welcome{Type: TypeWelcome, SessionID: sessionID, Player: player.String()}
}

func NewReject(reason string) Reject { return Reject{Type: TypeReject, Reason: reason} }

func NewDisconnect() Disconnect { return Disconnect{Type: TypeDisconnect} }

func NewTurn(movements []board.Movement) Turn {
	return Turn{Type: TypeTurn, Movements: movements}
}

func NewMovement(player board.Player, m board.Movement, scores [board.PlayerCount]int) Movement {
	return Movement{
		Type:     TypeMovement,
		Player:   player.String(),
		Movement: m,
		Scores:   toUintScores(scores),
	}
}

func NewFinished(winner board.Player, totalTurns int, scores [board.PlayerCount]int) GameFinished {
	return GameFinished{
		Type: TypeGameFinished,
		Result: GameResult{
			Type:       ResultFinished,
			Winner:     winner.String(),
			TotalTurns: uint(totalTurns),
			Scores:     toUintScores(scores),
		},
	}
}

func NewMaxTurns(totalTurns int, scores [board.PlayerCount]int) GameFinished {
	return GameFinished{
		Type: TypeGameFinished,
		Result: GameResult{
			Type:       ResultMaxTurns,
			TotalTurns: uint(totalTurns),
			Scores:     toUintScores(scores),
		},
	}
}

func toUintScores(scores [board.PlayerCount]int) [board.PlayerCount]uint {
	var out [board.PlayerCount]uint
	for i, s := range scores {
		out[i] = uint(s)
	}
	return out
}

// Marshal serializes any protocol message to its CBOR payload.
func Marshal(msg interface{}) ([]byte, error) {
	data, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}

// envelope is used to peek at the discriminator before a full decode.
type envelope struct {
	Type string `cbor:"type"`
}

// DecodeClient parses a payload sent by a client. The result is one of
// Hello, Reconnect, or Choice.
func DecodeClient(data []byte) (interface{}, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch env.Type {
	case TypeHello:
		var msg Hello
		return decodeAs(data, &msg)
	case TypeReconnect:
		var msg Reconnect
		return decodeAs(data, &msg)
	case TypeChoice:
		var msg Choice
		return decodeAs(data, &msg)
	}
	return nil, fmt.Errorf("%w: unknown client message type %q", ErrDecode, env.Type)
}

// DecodeServer parses a payload sent by the server. Used by test clients and
// the wire sniffer.
func DecodeServer(data []byte) (interface{}, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch env.Type {
	case TypeWelcome:
		var msg Welcome
		return decodeAs(data, &msg)
	case TypeReject:
		var msg Reject
		return decodeAs(data, &msg)
	case TypeDisconnect:
		var msg Disconnect
		return decodeAs(data, &msg)
	case TypeTurn:
		var msg Turn
		return decodeAs(data, &msg)
	case TypeMovement:
		var msg Movement
		return decodeAs(data, &msg)
	case TypeGameFinished:
		var msg GameFinished
		return decodeAs(data, &msg)
	}
	return nil, fmt.Errorf("%w: unknown server message type %q", ErrDecode, env.Type)
}

func decodeAs(data []byte, msg interface{}) (interface{}, error) {
	if err := cbor.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	// The pointer was only needed for Unmarshal; hand back the value.
	switch m := msg.(type) {
	case *Hello:
		return *m, nil
	case *Reconnect:
		return *m, nil
	case *Choice:
		return *m, nil
	case *Welcome:
		return *m, nil
	case *Reject:
		return *m, nil
	case *Disconnect:
		return *m, nil
	case *Turn:
		return *m, nil
	case *Movement:
		return *m, nil
	case *GameFinished:
		return *m, nil
	}
	return nil, fmt.Errorf("%w: unsupported message %T", ErrDecode, msg)
}
