// Package book offers precomputed opening moves so sessions can answer
// without waking the engine. Every failure here — a missing file, a dead
// redis, a malformed entry — degrades to "no suggestion"; callers always
// fall back to the engine.
package book

import (
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/pkg/chess"
)

// Entry is one weighted book move for a position.
type Entry struct {
	Move   string `json:"move"`
	Weight int    `json:"weight"`
}

// Source resolves a UCI move line (the space-separated moves played so far)
// to the weighted continuations the book knows for it.
type Source interface {
	Lookup(moveLine string) ([]Entry, error)
	Close() error
}

// Advisor answers move queries from a book source according to the
// configured selection policy.
type Advisor struct {
	cfg config.BookConfig
	src Source
}

// NewAdvisor opens the configured book backend. An unusable backend is
// logged and yields an advisor that never suggests; it is not an error.
func NewAdvisor(cfg config.BookConfig) *Advisor {
	a := &Advisor{cfg: cfg}
	if !cfg.Enabled {
		return a
	}

	var err error
	switch cfg.Backend {
	case "redis":
		a.src, err = NewRedisSource(cfg.RedisURL)
	default:
		a.src, err = NewFileSource(cfg.Path)
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("Opening book unavailable, playing without it")
		a.src = nil
	}
	return a
}

// newAdvisorWithSource wires a specific source, for tests.
func newAdvisorWithSource(cfg config.BookConfig, src Source) *Advisor {
	return &Advisor{cfg: cfg, src: src}
}

// WithinDepth reports whether the book may still be consulted at the given
// ply. The window closes once the book side has played max_depth moves.
func (a *Advisor) WithinDepth(ply int) bool {
	return a.cfg.Enabled && ply <= 2*a.cfg.MaxDepth-1
}

// Suggest returns a book move for the position, or false when the book has
// nothing to offer.
func (a *Advisor) Suggest(pos *chess.Position) (string, bool) {
	if !a.cfg.Enabled || a.src == nil {
		return "", false
	}

	entries, err := a.src.Lookup(pos.MoveText())
	if err != nil {
		log.Debug().Err(err).Int("ply", pos.Ply()).Msg("Book lookup failed")
		return "", false
	}
	if len(entries) == 0 {
		return "", false
	}

	if a.cfg.Randomize {
		return weightedSelect(entries), true
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if e.Weight > best.Weight {
			best = e
		}
	}
	if best.Weight < a.cfg.MinWeight {
		return "", false
	}
	return best.Move, true
}

// Close releases the backing source.
func (a *Advisor) Close() {
	if a.src != nil {
		a.src.Close()
	}
}

// weightedSelect picks a move with probability proportional to its weight.
func weightedSelect(entries []Entry) string {
	total := 0
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	if total == 0 {
		return entries[rand.Intn(len(entries))].Move
	}
	r := rand.Intn(total)
	cum := 0
	for _, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		cum += e.Weight
		if r < cum {
			return e.Move
		}
	}
	return entries[len(entries)-1].Move
}
