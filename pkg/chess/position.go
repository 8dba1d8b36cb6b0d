// Package chess tracks the move history of a single game and the turn
// state derived from it. Move legality and board geometry are the engine's
// business, not ours: a position here is an initial setup plus the ordered
// list of UCI moves played on top of it.
package chess

import "strings"

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color identifies one side of the board.
type Color int

const (
	White Color = iota
	Black
)

// String returns "white" or "black".
func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Position is the replayable move history of one game. It is owned by a
// single session and never shared.
type Position struct {
	initialFEN  string
	whiteStarts bool
	moves       []string
}

// NewPosition creates a position from an initial FEN. An empty string or
// "startpos" means the standard starting position. The side to move encoded
// in the FEN determines which color plays ply 0.
func NewPosition(initialFEN string) *Position {
	if initialFEN == "" || initialFEN == "startpos" {
		initialFEN = StartingFEN
	}
	return &Position{
		initialFEN:  initialFEN,
		whiteStarts: sideToMoveField(initialFEN) != "b",
	}
}

// sideToMoveField extracts the active-color field from a FEN string.
func sideToMoveField(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "w"
	}
	return fields[1]
}

// Push appends one move to the history.
func (p *Position) Push(move string) {
	p.moves = append(p.moves, move)
}

// Ply returns the number of half-moves played.
func (p *Position) Ply() int {
	return len(p.moves)
}

// Moves returns a copy of the move history.
func (p *Position) Moves() []string {
	out := make([]string, len(p.moves))
	copy(out, p.moves)
	return out
}

// LastMove returns the most recent move, or "" if none have been played.
func (p *Position) LastMove() string {
	if len(p.moves) == 0 {
		return ""
	}
	return p.moves[len(p.moves)-1]
}

// MoveText returns the history as a space-separated UCI move line.
func (p *Position) MoveText() string {
	return strings.Join(p.moves, " ")
}

// InitialFEN returns the initial setup this position replays from.
func (p *Position) InitialFEN() string {
	return p.initialFEN
}

// Standard reports whether the game began from the standard starting position.
func (p *Position) Standard() bool {
	return p.initialFEN == StartingFEN
}

// SideToMove is a pure function of the starting side and the ply count.
func (p *Position) SideToMove() Color {
	whiteToMove := len(p.moves)%2 == 0
	if !p.whiteStarts {
		whiteToMove = !whiteToMove
	}
	if whiteToMove {
		return White
	}
	return Black
}
