package bot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/squire/internal/engine"
	"github.com/freeeve/squire/internal/lichess"
	"github.com/freeeve/squire/internal/model"
	"github.com/freeeve/squire/pkg/chess"
)

// openingMoveTime bounds the engine's think on the very first move, where
// the remote clock has not started ticking against us yet.
const openingMoveTime = 2 * time.Second

// session is one game driver's state: the game snapshot, the replayed
// position, and the engine bound to it. Owned by a single goroutine.
type session struct {
	o    *Orchestrator
	game *model.Game
	pos  *chess.Position
	eng  engine.Engine
}

// runSession drives one game from snapshot to stream close. Every exit
// path enqueues exactly one local_game_done so the orchestrator frees the
// slot; only a failure to enqueue it is fatal. Transport and engine
// failures merely end the session.
func (o *Orchestrator) runSession(ctx context.Context, gameID string) (fatal error) {
	defer func() {
		if err := o.enqueue(ControlEvent{Type: EventLocalGameDone, Game: &gameRef{ID: gameID}}); err != nil {
			fatal = err
		}
	}()

	stream, err := o.src.StreamGame(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("Opening game stream failed")
		return nil
	}
	defer closeOnDone(ctx, stream)()

	snapshot, ok := firstLine(stream)
	if !ok {
		log.Error().Err(stream.Err()).Str("game", gameID).Msg("Game stream closed before snapshot")
		return nil
	}
	game, err := model.NewGame(snapshot, o.username, o.cfg.URL)
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("Bad game snapshot")
		return nil
	}

	pos := chess.NewPosition(game.InitialFen)
	for _, move := range game.State.MoveList() {
		pos.Push(move)
	}

	eng, err := o.factory(pos)
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("Starting engine failed")
		return nil
	}
	defer func() {
		if err := eng.Shutdown(); err != nil {
			log.Warn().Err(err).Str("game", gameID).Msg("Engine shutdown failed")
		}
	}()

	s := &session{o: o, game: game, pos: pos, eng: eng}
	log.Info().Str("game", game.String()).Str("color", game.Color().String()).
		Int("ply", pos.Ply()).Msg("Session started")

	if err := eng.Prepare(pos); err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("Engine prepare failed")
		return nil
	}

	game.AbortIn(o.cfg.Abort.After)
	if err := s.playFirstMove(ctx); err != nil {
		return nil
	}

	for line := range stream.Lines() {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.handleUpdate(ctx, line); err != nil {
			return nil
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("game", gameID).Msg("Game connection error")
	}
	log.Info().Str("game", game.ID).Msg("Session finished")
	return nil
}

// firstLine waits for the first non-heartbeat line of a fresh stream.
func firstLine(stream lichess.LineStream) ([]byte, bool) {
	for line := range stream.Lines() {
		if len(line) > 0 {
			return line, true
		}
	}
	return nil, false
}

// playFirstMove makes our move at the snapshot position if it is our turn,
// from the book when available, otherwise a short fixed-budget search. Runs
// both at game start and when rejoining a game after a dropped stream.
func (s *session) playFirstMove(ctx context.Context) error {
	if !s.game.MyTurn(s.pos) {
		return nil
	}
	if move, ok := s.bookMove(); ok {
		return s.submit(ctx, move)
	}
	move, err := s.eng.ProposeOpening(s.pos, openingMoveTime)
	if err != nil {
		log.Error().Err(err).Str("game", s.game.ID).Msg("Opening search failed")
		return err
	}
	return s.submit(ctx, move)
}

// handleUpdate dispatches one game stream line. Heartbeats drive the
// idle-abort check; unknown message types are logged and skipped.
func (s *session) handleUpdate(ctx context.Context, line []byte) error {
	if len(line) == 0 {
		return s.handlePing(ctx)
	}
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &header); err != nil {
		log.Warn().Err(err).Str("game", s.game.ID).Msg("Skipping malformed game event")
		return nil
	}
	switch header.Type {
	case "gameState":
		var state model.GameState
		if err := json.Unmarshal(line, &state); err != nil {
			log.Warn().Err(err).Str("game", s.game.ID).Msg("Skipping malformed game state")
			return nil
		}
		return s.handleGameState(ctx, state)
	case "chatLine":
		var chat model.ChatLine
		if err := json.Unmarshal(line, &chat); err != nil {
			log.Warn().Err(err).Str("game", s.game.ID).Msg("Skipping malformed chat line")
			return nil
		}
		s.handleChat(ctx, chat)
		return nil
	default:
		log.Debug().Str("game", s.game.ID).Str("type", header.Type).Msg("Ignoring game event")
		return nil
	}
}

// handleGameState folds a fresh state into the session: replace the clock
// view, replay any moves the position has not seen, and answer if it is
// our turn. The server echoes our own moves back, so our submissions reach
// the position through here too.
func (s *session) handleGameState(ctx context.Context, state model.GameState) error {
	s.game.State = state
	moves := state.MoveList()
	if len(moves) > s.pos.Ply() {
		for _, move := range moves[s.pos.Ply():] {
			s.pos.Push(move)
		}
	}
	if state.Status != "" && state.Status != "started" && state.Status != "created" {
		log.Info().Str("game", s.game.ID).Str("status", state.Status).Msg("Game over")
		return nil
	}
	if !s.game.MyTurn(s.pos) {
		return nil
	}

	move, ok := s.bookMove()
	if !ok {
		var err error
		move, err = s.eng.ProposeMove(s.pos,
			s.ownTime(), s.oppTime(), s.ownInc(), s.oppInc())
		if err != nil {
			log.Error().Err(err).Str("game", s.game.ID).Msg("Search failed")
			return err
		}
	}
	return s.submit(ctx, move)
}

// handlePing fires the idle abort when the opponent has gone quiet before
// the game really began. A vanished game is fine; other abort failures end
// the session.
func (s *session) handlePing(ctx context.Context) error {
	if !s.game.ShouldAbortNow() || s.pos.Ply() >= s.o.cfg.Abort.MinMoves {
		return nil
	}
	log.Info().Str("game", s.game.ID).Int("ply", s.pos.Ply()).Msg("Aborting idle game")
	s.game.AbortIn(s.o.cfg.Abort.After)
	if err := s.o.sink.Abort(ctx, s.game.ID); err != nil {
		if lichess.IsNotFound(err) {
			return nil
		}
		log.Error().Err(err).Str("game", s.game.ID).Msg("Abort failed")
		return err
	}
	return nil
}

// bookMove consults the opening book while the game is still inside its
// depth window.
func (s *session) bookMove() (string, bool) {
	if s.o.advisor == nil || !s.o.advisor.WithinDepth(s.pos.Ply()) {
		return "", false
	}
	return s.o.advisor.Suggest(s.pos)
}

// submit sends a move and re-arms the idle-abort window. The position is
// NOT pushed here; the server's echo advances it.
func (s *session) submit(ctx context.Context, move string) error {
	log.Info().Str("game", s.game.ID).Str("move", move).Int("ply", s.pos.Ply()).Msg("Playing move")
	if err := s.o.sink.MakeMove(ctx, s.game.ID, move); err != nil {
		log.Error().Err(err).Str("game", s.game.ID).Str("move", move).Msg("Move rejected")
		return err
	}
	s.game.AbortIn(s.o.cfg.Abort.After)
	return nil
}

func (s *session) ownTime() time.Duration { return s.clock(s.game.Color()) }
func (s *session) oppTime() time.Duration { return s.clock(s.game.Color().Other()) }

func (s *session) clock(c chess.Color) time.Duration {
	if c == chess.White {
		return time.Duration(s.game.State.WTime) * time.Millisecond
	}
	return time.Duration(s.game.State.BTime) * time.Millisecond
}

func (s *session) ownInc() time.Duration { return s.increment(s.game.Color()) }
func (s *session) oppInc() time.Duration { return s.increment(s.game.Color().Other()) }

func (s *session) increment(c chess.Color) time.Duration {
	if c == chess.White {
		return time.Duration(s.game.State.WInc) * time.Millisecond
	}
	return time.Duration(s.game.State.BInc) * time.Millisecond
}
