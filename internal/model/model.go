// Package model holds the wire-facing domain types: challenges received on
// the control stream and the per-game state streamed while playing.
package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/pkg/chess"
)

// ratedBonus is added to a challenge's score for rated games so rated
// challenges outrank casual ones at equal strength.
const ratedBonus = 500

// Player is a lichess account reference embedded in challenges and games.
type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Rating      int    `json:"rating"`
	Provisional bool   `json:"provisional"`
}

// Variant identifies the rule set of a game or challenge.
type Variant struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// TimeControl describes the clock of a challenge.
type TimeControl struct {
	Type      string `json:"type"` // "clock", "correspondence", "unlimited"
	Limit     int    `json:"limit"`
	Increment int    `json:"increment"`
	Show      string `json:"show"`
}

// Challenge is one pending challenge parsed from a control event. It lives
// only inside the orchestrator's pending queue.
type Challenge struct {
	ID          string      `json:"id"`
	Challenger  Player      `json:"challenger"`
	Variant     Variant     `json:"variant"`
	Rated       bool        `json:"rated"`
	Speed       string      `json:"speed"`
	TimeControl TimeControl `json:"timeControl"`
	Color       string      `json:"color"`
}

// Score orders pending challenges: stronger opponents first, rated games
// ahead of casual ones. Provisional ratings count half.
func (c *Challenge) Score() int {
	rating := c.Challenger.Rating
	if c.Challenger.Provisional {
		rating /= 2
	}
	if c.Rated {
		rating += ratedBonus
	}
	return rating
}

// IsSupported is the eligibility predicate for incoming challenges.
func (c *Challenge) IsSupported(rules config.ChallengeRules) bool {
	if !slices.Contains(rules.Variants, c.Variant.Key) {
		return false
	}
	if !slices.Contains(rules.Speeds, c.Speed) {
		return false
	}
	mode := "casual"
	if c.Rated {
		mode = "rated"
	}
	if !slices.Contains(rules.Modes, mode) {
		return false
	}
	if c.Challenger.Title == "BOT" && !rules.AcceptBot {
		return false
	}
	if rules.MinRating > 0 && c.Challenger.Rating < rules.MinRating {
		return false
	}
	if rules.MaxRating > 0 && c.Challenger.Rating > rules.MaxRating {
		return false
	}
	return true
}

// String identifies the challenge in log lines.
func (c *Challenge) String() string {
	return fmt.Sprintf("%s by %s (%d)", c.ID, c.Challenger.Name, c.Challenger.Rating)
}

// GameState is the mutable clock/move portion of a game, replaced wholesale
// on every gameState stream message.
type GameState struct {
	Type   string `json:"type"`
	Moves  string `json:"moves"`
	WTime  int    `json:"wtime"` // milliseconds
	BTime  int    `json:"btime"`
	WInc   int    `json:"winc"`
	BInc   int    `json:"binc"`
	Status string `json:"status"`
}

// MoveList splits the move text into individual UCI moves.
func (s *GameState) MoveList() []string {
	return strings.Fields(s.Moves)
}

// gameFull is the first message of every per-game stream: the complete
// snapshot the session is built from.
type gameFull struct {
	ID         string    `json:"id"`
	Variant    Variant   `json:"variant"`
	Rated      bool      `json:"rated"`
	Speed      string    `json:"speed"`
	InitialFen string    `json:"initialFen"`
	White      Player    `json:"white"`
	Black      Player    `json:"black"`
	State      GameState `json:"state"`
}

// Game is one session's view of a running game. It is owned exclusively by
// that session's driver and destroyed when the driver exits.
type Game struct {
	ID         string
	Variant    Variant
	Rated      bool
	Speed      string
	InitialFen string
	White      Player
	Black      Player
	State      GameState

	color   chess.Color
	me      string
	baseURL string
	abortAt time.Time
}

// NewGame parses the full game snapshot and fixes this bot's color for the
// rest of the session.
func NewGame(snapshot []byte, username, baseURL string) (*Game, error) {
	var full gameFull
	if err := json.Unmarshal(snapshot, &full); err != nil {
		return nil, fmt.Errorf("parse game snapshot: %w", err)
	}
	if full.ID == "" {
		return nil, fmt.Errorf("game snapshot missing id")
	}

	color := chess.Black
	if strings.EqualFold(full.White.Name, username) || full.White.ID == strings.ToLower(username) {
		color = chess.White
	}

	return &Game{
		ID:         full.ID,
		Variant:    full.Variant,
		Rated:      full.Rated,
		Speed:      full.Speed,
		InitialFen: full.InitialFen,
		White:      full.White,
		Black:      full.Black,
		State:      full.State,
		color:      color,
		me:         username,
		baseURL:    baseURL,
	}, nil
}

// Color returns the side this bot plays, fixed at game start.
func (g *Game) Color() chess.Color {
	return g.color
}

// Opponent returns the player on the other side of the board.
func (g *Game) Opponent() Player {
	if g.color == chess.White {
		return g.Black
	}
	return g.White
}

// MyTurn reports whether the side to move is ours. A pure function of the
// fixed color and the position's turn parity; no server round-trip.
func (g *Game) MyTurn(pos *chess.Position) bool {
	return pos.SideToMove() == g.color
}

// AbortIn arms the idle-abort deadline a fixed window from now.
func (g *Game) AbortIn(window time.Duration) {
	g.abortAt = time.Now().Add(window)
}

// ShouldAbortNow reports whether the idle deadline has elapsed. The deadline
// itself is not "elapsed": aborting starts strictly after it.
func (g *Game) ShouldAbortNow() bool {
	return !g.abortAt.IsZero() && time.Now().After(g.abortAt)
}

// URL returns the public address of the game.
func (g *Game) URL() string {
	return strings.TrimRight(g.baseURL, "/") + "/" + g.ID
}

// String identifies the game in log lines.
func (g *Game) String() string {
	return fmt.Sprintf("%s %s vs %s", g.URL(), g.White.Name, g.Black.Name)
}

// ChatLine is one chat message received on a game stream.
type ChatLine struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Room     string `json:"room"` // "player" or "spectator"
}
