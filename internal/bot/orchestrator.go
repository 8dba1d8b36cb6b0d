package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/freeeve/squire/internal/book"
	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/internal/engine"
	"github.com/freeeve/squire/internal/lichess"
	"github.com/freeeve/squire/internal/model"
)

// controlQueueSize bounds the shared event queue. Saturation means the
// loop has stalled badly enough that dropping events would corrupt the
// busy/queued accounting, so producers fail instead of blocking.
const controlQueueSize = 1024

var errControlQueueFull = errors.New("control queue full")

// Orchestrator owns the admission state machine. The busy and queued
// counters are written only from the Run loop; queued+busy never exceeds
// the configured game limit.
type Orchestrator struct {
	src      EventSource
	sink     CommandSink
	factory  engine.Factory
	advisor  *book.Advisor
	cfg      *config.Config
	username string

	control chan ControlEvent
	fatal   chan error
	pending *challengeQueue

	busy   int
	queued int
}

func New(src EventSource, sink CommandSink, factory engine.Factory,
	advisor *book.Advisor, cfg *config.Config, username string) *Orchestrator {
	return &Orchestrator{
		src:      src,
		sink:     sink,
		factory:  factory,
		advisor:  advisor,
		cfg:      cfg,
		username: username,
		control:  make(chan ControlEvent, controlQueueSize),
		fatal:    make(chan error, cfg.MaxConcurrentGames+1),
		pending:  newChallengeQueue(cfg.SortChallengesBy),
	}
}

// enqueue adds an event to the control queue without blocking. Sessions
// and the relay call this from their own goroutines.
func (o *Orchestrator) enqueue(ev ControlEvent) error {
	select {
	case o.control <- ev:
		return nil
	default:
		return errControlQueueFull
	}
}

// Run drives the control loop until ctx is cancelled or a control plane
// operation fails fatally. Session-level failures end only their session.
func (o *Orchestrator) Run(ctx context.Context) error {
	workers := pool.New().WithMaxGoroutines(o.cfg.MaxConcurrentGames + 1)

	// runCtx covers the relay and every session, so a fatal exit tears all
	// of them down instead of waiting for in-flight games to finish.
	runCtx, stop := context.WithCancel(ctx)
	relayDone := make(chan error, 1)
	workers.Go(func() {
		relayDone <- o.watchControlStream(runCtx)
	})
	defer func() {
		stop()
		workers.Wait()
	}()

	log.Info().Int("max_games", o.cfg.MaxConcurrentGames).Msg("Orchestrator running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-o.fatal:
			return err
		case err := <-relayDone:
			if err != nil {
				return err
			}
			// The relay exits cleanly only on cancellation.
			return ctx.Err()
		case ev := <-o.control:
			if err := o.handleEvent(runCtx, workers, ev); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, workers *pool.Pool, ev ControlEvent) error {
	switch ev.Type {
	case EventPing, EventChatLine:
		// Nothing to do at the control level.
	case EventLocalGameDone:
		o.busy--
		if o.busy < 0 {
			log.Warn().Int("busy", o.busy).Msg("Busy counter went negative")
		}
	case EventChallenge:
		if ev.Challenge == nil {
			log.Warn().Msg("Challenge event without payload")
			break
		}
		if err := o.admitChallenge(ctx, ev.Challenge); err != nil {
			return err
		}
	case EventGameStart:
		if ev.Game == nil {
			log.Warn().Msg("Game start event without payload")
			break
		}
		if o.queued <= 0 {
			log.Warn().Str("game", ev.Game.ID).Int("queued", o.queued).
				Msg("Game started without a reserved slot")
		} else {
			o.queued--
		}
		o.busy++
		id := ev.Game.ID
		workers.Go(func() {
			o.playGame(ctx, id)
		})
	default:
		log.Debug().Str("type", ev.Type).Msg("Ignoring control event")
	}
	return o.acceptPending(ctx)
}

func (o *Orchestrator) admitChallenge(ctx context.Context, c *model.Challenge) error {
	if c.IsSupported(o.cfg.Challenge) {
		log.Info().Str("challenge", c.String()).Int("score", c.Score()).Msg("Queueing challenge")
		o.pending.Push(c)
		return nil
	}
	log.Info().Str("challenge", c.String()).Msg("Declining challenge")
	if err := o.sink.DeclineChallenge(ctx, c.ID); err != nil {
		if lichess.IsNotFound(err) {
			log.Debug().Str("challenge", c.ID).Msg("Challenge already gone")
			return nil
		}
		return fmt.Errorf("declining challenge %s: %w", c.ID, err)
	}
	return nil
}

// acceptPending accepts queued challenges while game slots remain. A
// vanished challenge is skipped; any other accept failure is fatal.
func (o *Orchestrator) acceptPending(ctx context.Context) error {
	for o.pending.Len() > 0 && o.queued+o.busy < o.cfg.MaxConcurrentGames {
		c := o.pending.Pop()
		if err := o.sink.AcceptChallenge(ctx, c.ID); err != nil {
			if lichess.IsNotFound(err) {
				log.Info().Str("challenge", c.ID).Msg("Challenge expired before accept")
				continue
			}
			return fmt.Errorf("accepting challenge %s: %w", c.ID, err)
		}
		log.Info().Str("challenge", c.String()).Msg("Accepted challenge")
		o.queued++
	}
	return nil
}

// playGame wraps a session driver for the worker pool. A fatal error from
// the session (the control queue saturating) tears down the whole loop.
func (o *Orchestrator) playGame(ctx context.Context, gameID string) {
	if err := o.runSession(ctx, gameID); err != nil {
		select {
		case o.fatal <- err:
		default:
		}
	}
}
