// Package board implements the Sternhalma board and move engine: occupancy
// over the 121-cell star, deterministic move enumeration, move application,
// and goal-region scoring. Everything in this package is pure state; no
// networking or concurrency concerns leak in here.
package board

import (
	"errors"
	"fmt"
)

// boardLength is the side of the axial lattice the star is embedded in.
// Coordinates run 0..16 on both axes.
const boardLength = 17

// PiecesPerPlayer is the size of each starting (and goal) region.
const PiecesPerPlayer = 15

// HexIdx is an axial (q, r) coordinate on the lattice.
type HexIdx [2]int

// Movement is a (start, end) pair. Jump chains collapse to their start and
// final landing cell; intermediate hops are not part of the wire contract.
type Movement [2]HexIdx

// Player identifies one of the two seats.
type Player uint8

const (
	Player1 Player = iota
	Player2
)

// PlayerCount is the number of seats in a game.
const PlayerCount = 2

// Opponent returns the other player.
func (p Player) Opponent() Player {
	if p == Player1 {
		return Player2
	}
	return Player1
}

func (p Player) String() string {
	if p == Player1 {
		return "player1"
	}
	return "player2"
}

// ParsePlayer converts the wire form ("player1"/"player2") back to a Player.
func ParsePlayer(s string) (Player, error) {
	switch s {
	case "player1":
		return Player1, nil
	case "player2":
		return Player2, nil
	}
	return 0, fmt.Errorf("unknown player %q", s)
}

// cell is the occupancy of one lattice position.
type cell uint8

const (
	cellInvalid cell = iota
	cellEmpty
	cellPlayer1
	cellPlayer2
)

func cellFor(p Player) cell {
	if p == Player1 {
		return cellPlayer1
	}
	return cellPlayer2
}

// directions is the canonical neighbor order. The order is observable through
// the emitted move list, so it must never change.
var directions = [6]HexIdx{
	{+1, 0},
	{-1, 0},
	{0, +1},
	{0, -1},
	{+1, -1},
	{-1, +1},
}

// The star is the union of two side-13 triangles on the 17x17 lattice:
// one with q <= 12, r <= 12, q+r >= 12 and its point reflection. Their
// 61-cell hexagonal overlap makes the total come out at 121. Each player
// starts on a 15-cell tip: the 10-cell star point plus the adjacent row
// of five inside the hexagon.
var (
	validCells []HexIdx
	validSet   [boardLength * boardLength]bool

	startingCells [PlayerCount][]HexIdx
)

func inStar(q, r int) bool {
	if q < 0 || q >= boardLength || r < 0 || r >= boardLength {
		return false
	}
	if q <= 12 && r <= 12 && q+r >= 12 {
		return true
	}
	return q >= 4 && r >= 4 && q+r <= 20
}

func init() {
	validCells = make([]HexIdx, 0, 121)
	for q := 0; q < boardLength; q++ {
		for r := 0; r < boardLength; r++ {
			if inStar(q, r) {
				validCells = append(validCells, HexIdx{q, r})
				validSet[q*boardLength+r] = true
			}
		}
	}

	p1 := make([]HexIdx, 0, PiecesPerPlayer)
	for q := 0; q <= 4; q++ {
		for r := 12 - q; r <= 12; r++ {
			p1 = append(p1, HexIdx{q, r})
		}
	}
	p2 := make([]HexIdx, len(p1))
	for i, idx := range p1 {
		p2[i] = Mirror(idx)
	}
	startingCells[Player1] = p1
	startingCells[Player2] = p2
}

// Cells returns the valid-cell table in canonical (row-major) order. Callers
// must not mutate the returned slice.
func Cells() []HexIdx {
	return validCells
}

// StartingCells returns the 15 starting cells of a player. Player1's are in
// canonical order; Player2's are their point reflections, index for index,
// which puts them in reverse canonical order.
func StartingCells(p Player) []HexIdx {
	return startingCells[p]
}

// GoalCells returns the goal region of a player: the opponent's start.
func GoalCells(p Player) []HexIdx {
	return startingCells[p.Opponent()]
}

// Mirror reflects a cell through the board center. The mirror of a player's
// region is the opponent's.
func Mirror(idx HexIdx) HexIdx {
	return HexIdx{boardLength - 1 - idx[0], boardLength - 1 - idx[1]}
}

// Valid reports whether idx is one of the 121 board cells.
func Valid(idx HexIdx) bool {
	q, r := idx[0], idx[1]
	if q < 0 || q >= boardLength || r < 0 || r >= boardLength {
		return false
	}
	return validSet[q*boardLength+r]
}

// Board is the occupancy of the valid cells. The zero value is unusable;
// construct with New or Empty.
type Board struct {
	cells [boardLength * boardLength]cell
}

// Empty returns a board with every valid cell unoccupied.
func Empty() *Board {
	b := &Board{}
	for _, idx := range validCells {
		b.cells[idx[0]*boardLength+idx[1]] = cellEmpty
	}
	return b
}

// New returns a board with both players in their starting regions.
func New() *Board {
	b := Empty()
	for p := Player1; p <= Player2; p++ {
		for _, idx := range startingCells[p] {
			b.cells[idx[0]*boardLength+idx[1]] = cellFor(p)
		}
	}
	return b
}

func (b *Board) at(idx HexIdx) cell {
	if idx[0] < 0 || idx[0] >= boardLength || idx[1] < 0 || idx[1] >= boardLength {
		return cellInvalid
	}
	return b.cells[idx[0]*boardLength+idx[1]]
}

// Occupant returns the piece at idx. ok is false when the cell is empty or
// off the board.
func (b *Board) Occupant(idx HexIdx) (Player, bool) {
	switch b.at(idx) {
	case cellPlayer1:
		return Player1, true
	case cellPlayer2:
		return Player2, true
	}
	return 0, false
}

var (
	// ErrNotYourPiece is returned when the start cell does not hold a piece
	// of the moving player.
	ErrNotYourPiece = errors.New("start cell does not hold a piece of the moving player")
	// ErrIllegalDestination is returned when the end cell is occupied or off
	// the board.
	ErrIllegalDestination = errors.New("end cell is not an empty board cell")
)

// Apply transfers occupancy from m[0] to m[1] for player p. Membership of m
// in the legal move list is the caller's contract; Apply only re-checks the
// cell-level preconditions.
func (b *Board) Apply(p Player, m Movement) error {
	if b.at(m[0]) != cellFor(p) {
		return ErrNotYourPiece
	}
	if b.at(m[1]) != cellEmpty {
		return ErrIllegalDestination
	}
	b.cells[m[0][0]*boardLength+m[0][1]] = cellEmpty
	b.cells[m[1][0]*boardLength+m[1][1]] = cellFor(p)
	return nil
}

// Place puts a piece of p on an empty cell. Used to build test positions.
func (b *Board) Place(p Player, idx HexIdx) error {
	if b.at(idx) != cellEmpty {
		return ErrIllegalDestination
	}
	b.cells[idx[0]*boardLength+idx[1]] = cellFor(p)
	return nil
}

// Score counts p's pieces currently inside p's goal region.
func (b *Board) Score(p Player) int {
	n := 0
	for _, idx := range GoalCells(p) {
		if b.at(idx) == cellFor(p) {
			n++
		}
	}
	return n
}

// Scores returns both players' scores, indexed by player.
func (b *Board) Scores() [PlayerCount]int {
	return [PlayerCount]int{b.Score(Player1), b.Score(Player2)}
}

// Winner returns the player occupying their entire goal region, if any.
func (b *Board) Winner() (Player, bool) {
	for p := Player1; p <= Player2; p++ {
		if b.Score(p) == PiecesPerPlayer {
			return p, true
		}
	}
	return 0, false
}
