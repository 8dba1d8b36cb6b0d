package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/internal/engine"
	"github.com/freeeve/squire/internal/lichess"
	"github.com/freeeve/squire/pkg/chess"
)

// fakeStream feeds a fixed script of lines and then reports err.
type fakeStream struct {
	lines chan []byte
	err   error
}

func newFakeStream(err error, lines ...string) *fakeStream {
	ch := make(chan []byte, len(lines))
	for _, l := range lines {
		ch <- []byte(l)
	}
	close(ch)
	return &fakeStream{lines: ch, err: err}
}

func (s *fakeStream) Lines() <-chan []byte { return s.lines }
func (s *fakeStream) Err() error           { return s.err }
func (s *fakeStream) Close() error         { return nil }

// fakeSource hands out one scripted stream per game id.
type fakeSource struct {
	events      lichess.LineStream
	eventsErr   error
	games       map[string]lichess.LineStream
	gameErr     error
	mu          sync.Mutex
	gameStreams []string
}

func (f *fakeSource) StreamEvents(ctx context.Context) (lichess.LineStream, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeSource) StreamGame(ctx context.Context, gameID string) (lichess.LineStream, error) {
	f.mu.Lock()
	f.gameStreams = append(f.gameStreams, gameID)
	f.mu.Unlock()
	if f.gameErr != nil {
		return nil, f.gameErr
	}
	s, ok := f.games[gameID]
	if !ok {
		return nil, fmt.Errorf("no stream scripted for %s", gameID)
	}
	return s, nil
}

// fakeSink records every command and fails the ones it was told to fail.
type fakeSink struct {
	mu       sync.Mutex
	accepted []string
	declined []string
	moves    []string
	aborts   []string
	chats    []string

	acceptErr  error
	declineErr error
	moveErr    error
	abortErr   error
	chatErr    error
}

func notFound() error {
	return &lichess.RequestError{Status: 404, Path: "/test"}
}

func (f *fakeSink) AcceptChallenge(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, id)
	return f.acceptErr
}

func (f *fakeSink) DeclineChallenge(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, id)
	return f.declineErr
}

func (f *fakeSink) MakeMove(ctx context.Context, gameID, move string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, move)
	return f.moveErr
}

func (f *fakeSink) Abort(ctx context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts = append(f.aborts, gameID)
	return f.abortErr
}

func (f *fakeSink) Chat(ctx context.Context, gameID, room, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, text)
	return f.chatErr
}

func (f *fakeSink) recordedMoves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.moves...)
}

// stubEngine plays from two fixed answers and counts lifecycle calls.
type stubEngine struct {
	mu        sync.Mutex
	opening   string
	move      string
	moveErr   error
	prepares  int
	shutdowns int
}

func (e *stubEngine) Prepare(pos *chess.Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepares++
	return nil
}

func (e *stubEngine) ProposeOpening(pos *chess.Position, budget time.Duration) (string, error) {
	return e.opening, e.moveErr
}

func (e *stubEngine) ProposeMove(pos *chess.Position, own, opp, ownInc, oppInc time.Duration) (string, error) {
	return e.move, e.moveErr
}

func (e *stubEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdowns++
	return nil
}

func (e *stubEngine) shutdownCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdowns
}

func testConfig() *config.Config {
	return &config.Config{
		Token:              "tok",
		URL:                "https://lichess.org",
		MaxConcurrentGames: 1,
		SortChallengesBy:   "best",
		Abort: config.AbortConfig{
			After:    20 * time.Second,
			MinMoves: 2,
		},
		Challenge: config.ChallengeRules{
			Variants: []string{"standard"},
			Speeds:   []string{"bullet", "blitz", "rapid"},
			Modes:    []string{"casual", "rated"},
		},
	}
}

func testOrchestrator(cfg *config.Config, src *fakeSource, sink *fakeSink, eng *stubEngine) *Orchestrator {
	return New(src, sink, func(pos *chess.Position) (engine.Engine, error) {
		return eng, nil
	}, nil, cfg, "squire")
}
