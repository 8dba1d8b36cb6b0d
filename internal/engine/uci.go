package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/pkg/chess"
)

// stopGrace is how long after "stop" the engine gets to emit its bestmove
// before the search is abandoned.
const stopGrace = 2 * time.Second

// handshakeTimeout bounds the uci/isready exchanges at startup.
const handshakeTimeout = 10 * time.Second

// UCIOption configures a UCIEngine before launch.
type UCIOption func(*UCIEngine)

// WithOption queues a "setoption" command to send during handshake.
func WithOption(name, value string) UCIOption {
	return func(e *UCIEngine) {
		e.options = append(e.options, uciOption{name: name, value: value})
	}
}

// uciOption is a name/value pair sent via "setoption name <n> value <v>".
type uciOption struct {
	name  string
	value string
}

// UCIEngine implements Engine by delegating to an external UCI process. A
// single goroutine owns the stdout pipe and feeds output; waiters only ever
// read from that channel, so a timed-out wait leaves no concurrent reader
// behind.
type UCIEngine struct {
	enginePath string
	options    []uciOption

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// output carries stdout lines; closed when the reader stops. readErr
	// is set before the close and may only be read after observing it.
	output  chan string
	readErr error

	mu     sync.Mutex
	closed bool

	// exited is closed when the process exits; used by isAlive.
	exited chan struct{}
}

// NewUCIEngine spawns the engine process, performs the UCI handshake
// (uci -> uciok, setoptions, isready -> readyok), and returns a ready engine.
func NewUCIEngine(enginePath string, opts ...UCIOption) (*UCIEngine, error) {
	e := &UCIEngine{enginePath: enginePath}
	for _, o := range opts {
		o(e)
	}

	if err := e.start(); err != nil {
		return nil, fmt.Errorf("uci engine: start: %w", err)
	}

	if err := e.handshake(); err != nil {
		e.Shutdown()
		return nil, fmt.Errorf("uci engine: handshake: %w", err)
	}

	return e, nil
}

// NewUCIFactory returns a Factory launching the configured engine once per
// session. Options are sorted by name so the handshake is deterministic.
func NewUCIFactory(cfg config.EngineConfig) Factory {
	names := make([]string, 0, len(cfg.Options))
	for name := range cfg.Options {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(_ *chess.Position) (Engine, error) {
		opts := make([]UCIOption, 0, len(names))
		for _, name := range names {
			opts = append(opts, WithOption(name, cfg.Options[name]))
		}
		return NewUCIEngine(cfg.Path, opts...)
	}
}

// Prepare announces a new game and waits for the engine to settle.
func (e *UCIEngine) Prepare(_ *chess.Position) error {
	e.send("ucinewgame")
	e.send("isready")
	if err := e.readUntil("readyok", handshakeTimeout); err != nil {
		return fmt.Errorf("uci engine: ucinewgame: %w", err)
	}
	return nil
}

// ProposeOpening searches under a fixed movetime budget.
func (e *UCIEngine) ProposeOpening(pos *chess.Position, budget time.Duration) (string, error) {
	return e.search(pos, fmt.Sprintf("go movetime %d", budget.Milliseconds()), budget+stopGrace)
}

// ProposeMove searches under the game clocks. UCI wants white/black times,
// so own/opp are mapped through the side to move — which is ours whenever
// this is called.
func (e *UCIEngine) ProposeMove(pos *chess.Position, own, opp, ownInc, oppInc time.Duration) (string, error) {
	wtime, btime, winc, binc := own, opp, ownInc, oppInc
	if pos.SideToMove() == chess.Black {
		wtime, btime, winc, binc = opp, own, oppInc, ownInc
	}
	cmd := fmt.Sprintf("go wtime %d btime %d winc %d binc %d",
		wtime.Milliseconds(), btime.Milliseconds(), winc.Milliseconds(), binc.Milliseconds())

	deadline := own + stopGrace
	if own <= 0 {
		deadline = stopGrace
	}
	return e.search(pos, cmd, deadline)
}

// Shutdown sends "quit" to the engine and waits for process exit. If the
// process does not exit within 3 seconds, it is forcefully killed. Safe to
// call more than once; only the first call does anything.
func (e *UCIEngine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	// Send quit while stdin is still open and before marking closed.
	if e.stdin != nil {
		fmt.Fprintf(e.stdin, "quit\n")
	}
	e.closed = true
	e.mu.Unlock()

	if e.stdin != nil {
		e.stdin.Close()
	}

	if e.exited != nil {
		select {
		case <-e.exited:
			// Process already exited.
		case <-time.After(3 * time.Second):
			log.Warn().Str("engine", e.enginePath).Msg("Engine did not exit within 3s, killing")
			if e.cmd != nil && e.cmd.Process != nil {
				e.cmd.Process.Kill()
			}
			<-e.exited
		}
	}
	return nil
}

// start launches the engine subprocess and starts a goroutine to track exit.
func (e *UCIEngine) start() error {
	e.cmd = exec.Command(e.enginePath)

	var err error
	e.stdin, err = e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	e.output = make(chan string, 64)
	e.exited = make(chan struct{})

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	// Track process exit in background so isAlive can check without blocking.
	go func() {
		e.cmd.Wait()
		close(e.exited)
	}()

	// Single reader owning stdout. Bails out on process exit even when no
	// waiter is draining the channel.
	go func() {
		defer close(e.output)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case e.output <- scanner.Text():
			case <-e.exited:
				return
			}
		}
		e.readErr = scanner.Err()
	}()

	return nil
}

// handshake performs the UCI initialization sequence.
func (e *UCIEngine) handshake() error {
	e.send("uci")
	if err := e.readUntil("uciok", handshakeTimeout); err != nil {
		return fmt.Errorf("waiting for uciok: %w", err)
	}

	for _, opt := range e.options {
		if opt.value != "" {
			e.send(fmt.Sprintf("setoption name %s value %s", opt.name, opt.value))
		} else {
			e.send(fmt.Sprintf("setoption name %s", opt.name))
		}
	}

	e.send("isready")
	if err := e.readUntil("readyok", handshakeTimeout); err != nil {
		return fmt.Errorf("waiting for readyok: %w", err)
	}

	return nil
}

// search sends position + go to the engine and reads the bestmove response.
func (e *UCIEngine) search(pos *chess.Position, goCmd string, deadline time.Duration) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", fmt.Errorf("engine is closed")
	}
	e.mu.Unlock()

	if !e.isAlive() {
		return "", fmt.Errorf("engine process is not running")
	}

	// Discard output left over from an abandoned search, so a late bestmove
	// cannot be mistaken for this search's answer.
	e.drainOutput()

	e.send(positionCommand(pos))
	e.send(goCmd)

	move, err := e.readBestMove(deadline)
	if err != nil {
		return "", fmt.Errorf("reading engine response: %w", err)
	}
	if move == "" || move == "(none)" {
		return "", fmt.Errorf("engine returned no move")
	}
	return move, nil
}

// positionCommand encodes the position for the engine: startpos for standard
// games, the initial FEN otherwise, plus the moves played.
func positionCommand(pos *chess.Position) string {
	var b strings.Builder
	if pos.Standard() {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(pos.InitialFEN())
	}
	if pos.Ply() > 0 {
		b.WriteString(" moves ")
		b.WriteString(pos.MoveText())
	}
	return b.String()
}

// readBestMove reads engine output until bestmove, skipping info lines. If
// the deadline is exceeded, it sends "stop" and waits a short grace period
// for the forced bestmove.
func (e *UCIEngine) readBestMove(deadline time.Duration) (string, error) {
	timer := time.After(deadline)
	stopped := false
	for {
		select {
		case line, ok := <-e.output:
			if !ok {
				if e.readErr != nil {
					return "", fmt.Errorf("scanner: %w", e.readErr)
				}
				return "", fmt.Errorf("engine closed stdout unexpectedly")
			}
			if strings.HasPrefix(line, "bestmove") {
				fields := strings.Fields(line)
				if len(fields) < 2 {
					return "", fmt.Errorf("malformed bestmove line %q", line)
				}
				return fields[1], nil
			}
			// Skip info lines.
		case <-timer:
			if stopped {
				return "", fmt.Errorf("engine did not respond to stop within %v", stopGrace)
			}
			e.send("stop")
			stopped = true
			timer = time.After(stopGrace)
		}
	}
}

// send writes a command line to the engine's stdin.
func (e *UCIEngine) send(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.stdin == nil {
		return
	}
	fmt.Fprintf(e.stdin, "%s\n", line)
}

// readUntil reads engine output until the expected line is seen. Lines not
// matching are ignored (id, option, info lines, etc).
func (e *UCIEngine) readUntil(expected string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-e.output:
			if !ok {
				if e.readErr != nil {
					return e.readErr
				}
				return fmt.Errorf("engine closed stdout before sending %q", expected)
			}
			if line == expected {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timeout waiting for %q", expected)
		}
	}
}

// drainOutput discards buffered engine output without blocking.
func (e *UCIEngine) drainOutput() {
	for {
		select {
		case _, ok := <-e.output:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// isAlive checks whether the engine process is still running.
func (e *UCIEngine) isAlive() bool {
	if e.exited == nil {
		return false
	}
	select {
	case <-e.exited:
		return false
	default:
		return true
	}
}
