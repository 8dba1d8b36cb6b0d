package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/freeeve/squire/internal/model"
)

func TestChatCommandsGetReplies(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSession(t, sink, testConfig())

	for _, cmd := range []string{"!name", "!howto", "!eval", "!queue"} {
		s.handleChat(context.Background(), model.ChatLine{
			Type: "chatLine", Username: "rival", Text: cmd, Room: "player",
		})
	}
	if len(sink.chats) != 4 {
		t.Fatalf("replied %d times, want 4: %v", len(sink.chats), sink.chats)
	}
	if !strings.Contains(sink.chats[0], Version) {
		t.Fatalf("!name reply %q should carry the version", sink.chats[0])
	}
}

func TestChatIgnoresPlainMessages(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSession(t, sink, testConfig())

	s.handleChat(context.Background(), model.ChatLine{
		Type: "chatLine", Username: "rival", Text: "good luck!", Room: "player",
	})
	if len(sink.chats) != 0 {
		t.Fatalf("replied to a plain message: %v", sink.chats)
	}
}

func TestChatIgnoresOwnMessages(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSession(t, sink, testConfig())

	s.handleChat(context.Background(), model.ChatLine{
		Type: "chatLine", Username: "squire", Text: "!name", Room: "player",
	})
	if len(sink.chats) != 0 {
		t.Fatalf("replied to itself: %v", sink.chats)
	}
}

func TestChatCommandsAreCaseInsensitive(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSession(t, sink, testConfig())

	s.handleChat(context.Background(), model.ChatLine{
		Type: "chatLine", Username: "rival", Text: "  !NAME ", Room: "spectator",
	})
	if len(sink.chats) != 1 {
		t.Fatalf("replied %d times, want 1", len(sink.chats))
	}
}

func TestChatFailureIsBestEffort(t *testing.T) {
	sink := &fakeSink{chatErr: notFound()}
	s := newTestSession(t, sink, testConfig())

	// Must not panic or propagate; chat never disturbs the game.
	s.handleChat(context.Background(), model.ChatLine{
		Type: "chatLine", Username: "rival", Text: "!name", Room: "player",
	})
}
