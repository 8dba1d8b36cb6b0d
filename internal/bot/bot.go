// Package bot contains the session orchestrator: it turns the server's
// single control-event stream into a bounded set of concurrently running
// game sessions, each driving the external engine through the turn-based
// bot protocol.
package bot

import (
	"context"
	"encoding/json"

	"github.com/freeeve/squire/internal/book"
	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/internal/engine"
	"github.com/freeeve/squire/internal/lichess"
	"github.com/freeeve/squire/internal/model"
)

// Version is reported in chat replies and the client user agent.
const Version = "0.9"

// EventSource yields the line-delimited streams the orchestrator consumes:
// the global control stream and one stream per accepted game, whose first
// line is always the full game snapshot.
type EventSource interface {
	StreamEvents(ctx context.Context) (lichess.LineStream, error)
	StreamGame(ctx context.Context, gameID string) (lichess.LineStream, error)
}

// CommandSink carries the commands the orchestrator and its sessions issue.
// A not-found failure means the challenge or game is already gone and is
// benign; any other failure from accept/decline is fatal to the control loop.
type CommandSink interface {
	AcceptChallenge(ctx context.Context, id string) error
	DeclineChallenge(ctx context.Context, id string) error
	MakeMove(ctx context.Context, gameID, move string) error
	Abort(ctx context.Context, gameID string) error
	Chat(ctx context.Context, gameID, room, text string) error
}

// Control event types seen on the shared queue. localGameDone is synthesized
// by session drivers; ping by the relay for heartbeat lines.
const (
	EventPing          = "ping"
	EventChallenge     = "challenge"
	EventGameStart     = "gameStart"
	EventChatLine      = "chatLine"
	EventLocalGameDone = "local_game_done"
)

// ControlEvent is one message on the shared control queue. Immutable once
// constructed; produced by the relay or a session driver, consumed only by
// the orchestrator loop.
type ControlEvent struct {
	Type      string           `json:"type"`
	Challenge *model.Challenge `json:"challenge,omitempty"`
	Game      *gameRef         `json:"game,omitempty"`
}

type gameRef struct {
	ID string `json:"id"`
}

// parseControlEvent decodes one non-empty control stream line.
func parseControlEvent(line []byte) (ControlEvent, error) {
	var ev ControlEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return ControlEvent{}, err
	}
	return ev, nil
}

// Start runs the orchestrator until ctx is cancelled or a fatal control
// plane failure occurs. It is the package's sole entry point.
func Start(ctx context.Context, src EventSource, sink CommandSink, factory engine.Factory,
	advisor *book.Advisor, cfg *config.Config, username string) error {
	return New(src, sink, factory, advisor, cfg, username).Run(ctx)
}
