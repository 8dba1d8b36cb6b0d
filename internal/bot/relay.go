package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/squire/internal/lichess"
)

// closeOnDone closes the stream as soon as ctx is cancelled, so a reader
// blocked on Lines() wakes up. The returned func releases the watcher; call
// it when done with the stream.
func closeOnDone(ctx context.Context, stream lichess.LineStream) func() {
	watch, stop := context.WithCancel(ctx)
	go func() {
		<-watch.Done()
		stream.Close()
	}()
	return stop
}

// watchControlStream pumps the control stream into the orchestrator's
// queue. Heartbeat (empty) lines become ping events so the loop keeps
// ticking and re-draining the pending queue. Unparseable lines are logged
// and skipped; a full queue or a broken stream ends the relay with an
// error, which the orchestrator treats as fatal.
func (o *Orchestrator) watchControlStream(ctx context.Context) error {
	stream, err := o.src.StreamEvents(ctx)
	if err != nil {
		return fmt.Errorf("opening control stream: %w", err)
	}
	defer closeOnDone(ctx, stream)()

	for line := range stream.Lines() {
		if ctx.Err() != nil {
			return nil
		}
		if len(line) == 0 {
			if err := o.enqueue(ControlEvent{Type: EventPing}); err != nil {
				return err
			}
			continue
		}
		ev, err := parseControlEvent(line)
		if err != nil {
			log.Warn().Err(err).Str("line", string(line)).Msg("Skipping malformed control event")
			continue
		}
		if err := o.enqueue(ev); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("control stream closed: %w", err)
	}
	return fmt.Errorf("control stream closed")
}
