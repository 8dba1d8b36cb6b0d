package book

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/pkg/chess"
)

const sampleBook = `{
	"lines": [
		{"line": "", "replies": [{"move": "e2e4", "weight": 120}, {"move": "d2d4", "weight": 80}]},
		{"line": "e2e4 e7e5", "replies": [{"move": "g1f3", "weight": 60}]},
		{"line": "e2e4 c7c5", "replies": [{"move": "g1f3", "weight": 5}]}
	]
}`

func writeBook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.json")
	if err := os.WriteFile(path, []byte(sampleBook), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fileAdvisor(t *testing.T, cfg config.BookConfig) *Advisor {
	t.Helper()
	cfg.Enabled = true
	cfg.Path = writeBook(t)
	a := NewAdvisor(cfg)
	if a.src == nil {
		t.Fatal("file source failed to open")
	}
	return a
}

func TestSuggestHighestWeight(t *testing.T) {
	a := fileAdvisor(t, config.BookConfig{MinWeight: 1, MaxDepth: 4})
	move, ok := a.Suggest(chess.NewPosition(""))
	if !ok || move != "e2e4" {
		t.Fatalf("Suggest = (%q, %v), want e2e4", move, ok)
	}

	pos := chess.NewPosition("")
	pos.Push("e2e4")
	pos.Push("e7e5")
	move, ok = a.Suggest(pos)
	if !ok || move != "g1f3" {
		t.Fatalf("Suggest after e4 e5 = (%q, %v), want g1f3", move, ok)
	}
}

func TestSuggestRespectsMinWeight(t *testing.T) {
	a := fileAdvisor(t, config.BookConfig{MinWeight: 50, MaxDepth: 4})
	pos := chess.NewPosition("")
	pos.Push("e2e4")
	pos.Push("c7c5")
	if move, ok := a.Suggest(pos); ok {
		t.Fatalf("Suggest = %q, want no suggestion below min weight", move)
	}
}

func TestSuggestUnknownLine(t *testing.T) {
	a := fileAdvisor(t, config.BookConfig{MinWeight: 1, MaxDepth: 4})
	pos := chess.NewPosition("")
	pos.Push("a2a3")
	if move, ok := a.Suggest(pos); ok {
		t.Fatalf("Suggest = %q for a line the book does not know", move)
	}
}

func TestSuggestRandomizedStaysInBook(t *testing.T) {
	a := fileAdvisor(t, config.BookConfig{Randomize: true, MaxDepth: 4})
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		move, ok := a.Suggest(chess.NewPosition(""))
		if !ok {
			t.Fatal("randomized suggest returned nothing")
		}
		if move != "e2e4" && move != "d2d4" {
			t.Fatalf("randomized suggest returned %q, not a book move", move)
		}
		seen[move] = true
	}
	if len(seen) != 2 {
		t.Errorf("weighted selection never varied: %v", seen)
	}
}

func TestDisabledAdvisorNeverSuggests(t *testing.T) {
	a := NewAdvisor(config.BookConfig{Enabled: false})
	if _, ok := a.Suggest(chess.NewPosition("")); ok {
		t.Fatal("disabled advisor suggested a move")
	}
	if a.WithinDepth(0) {
		t.Fatal("disabled advisor reports an open depth window")
	}
}

// The depth window admits ply 2*max_depth-1 and closes at 2*max_depth.
func TestWithinDepthBoundary(t *testing.T) {
	a := newAdvisorWithSource(config.BookConfig{Enabled: true, MaxDepth: 3}, nil)
	for ply := 0; ply <= 5; ply++ {
		if !a.WithinDepth(ply) {
			t.Errorf("ply %d: window closed early", ply)
		}
	}
	if a.WithinDepth(6) {
		t.Error("ply 6: window should be closed")
	}
}

// A broken backend means no suggestions, never an error for the caller.
func TestMissingBookFileDegrades(t *testing.T) {
	a := NewAdvisor(config.BookConfig{Enabled: true, Path: "/does/not/exist.json", MaxDepth: 4})
	if _, ok := a.Suggest(chess.NewPosition("")); ok {
		t.Fatal("advisor with missing book suggested a move")
	}
}

type failingSource struct{}

func (failingSource) Lookup(string) ([]Entry, error) { return nil, errors.New("backend down") }
func (failingSource) Close() error                   { return nil }

func TestLookupFailureDegrades(t *testing.T) {
	a := newAdvisorWithSource(config.BookConfig{Enabled: true, MaxDepth: 4}, failingSource{})
	if _, ok := a.Suggest(chess.NewPosition("")); ok {
		t.Fatal("advisor suggested a move from a failing source")
	}
}
