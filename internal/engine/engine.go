// Package engine is the boundary to the external move-generation process.
// The orchestrator only sees the Engine interface; the UCI implementation
// below it is one of possibly many engines.
package engine

import (
	"time"

	"github.com/freeeve/squire/pkg/chess"
)

// Engine proposes moves for a single game. Implementations are constructed
// per session via a Factory and must tolerate Shutdown being called on every
// session exit path; it is invoked exactly once.
type Engine interface {
	// Prepare readies the engine for a new game starting from pos.
	Prepare(pos *chess.Position) error
	// ProposeOpening searches the position under a fixed time budget,
	// independent of the remote clock.
	ProposeOpening(pos *chess.Position, budget time.Duration) (string, error)
	// ProposeMove searches the position given both players' remaining time
	// and increments.
	ProposeMove(pos *chess.Position, own, opp, ownInc, oppInc time.Duration) (string, error)
	// Shutdown terminates the engine and releases its resources.
	Shutdown() error
}

// Factory builds one engine per session, bound to the game's starting
// position.
type Factory func(pos *chess.Position) (Engine, error)
