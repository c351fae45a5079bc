package board

import "fmt"

// Game couples a board with the turn state the hub arbitrates over. The hub
// is the only writer; everything here stays single-goroutine.
type Game struct {
	board   *Board
	current Player
	turns   int
	history []Movement
}

// NewGame returns a game in the initial position with Player1 to move.
func NewGame() *Game {
	return &Game{
		board:   New(),
		current: Player1,
		history: make([]Movement, 0, 128),
	}
}

// NewGameFrom resumes a game from an arbitrary position. Used by tests and
// tools that need to start mid-game.
func NewGameFrom(b *Board, current Player, turns int) *Game {
	return &Game{
		board:   b,
		current: current,
		turns:   turns,
		history: make([]Movement, 0, 128),
	}
}

// Board exposes the underlying occupancy, read-only by convention.
func (g *Game) Board() *Board { return g.board }

// Current returns the player whose turn it is.
func (g *Game) Current() Player { return g.current }

// Turns returns the number of turns elapsed: applied movements plus passes.
func (g *Game) Turns() int { return g.turns }

// History returns the applied movements in order.
func (g *Game) History() []Movement { return g.history }

// Scores returns the goal-region piece counts, indexed by player.
func (g *Game) Scores() [PlayerCount]int { return g.board.Scores() }

// Winner reports the player that has filled their goal region, if any.
func (g *Game) Winner() (Player, bool) { return g.board.Winner() }

// Moves enumerates the current player's legal movements.
func (g *Game) Moves() []Movement {
	return g.board.Moves(g.current)
}

// Apply performs a movement for the current player, records it, and rotates
// the turn. The caller is responsible for having validated membership of m
// in the enumerated move list; a failure here is an engine bug, not a client
// error.
func (g *Game) Apply(m Movement) error {
	if err := g.board.Apply(g.current, m); err != nil {
		return fmt.Errorf("applying %v for %s: %w", m, g.current, err)
	}
	g.history = append(g.history, m)
	g.turns++
	g.current = g.current.Opponent()
	return nil
}

// Pass rotates the turn without a movement. Used when the current player has
// no legal moves.
func (g *Game) Pass() {
	g.turns++
	g.current = g.current.Opponent()
}
