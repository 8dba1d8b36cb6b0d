package bot

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/squire/internal/model"
)

// handleChat answers the small command vocabulary in game chat. Replies go
// to the room the command arrived in and are best effort; a failed chat
// never disturbs the game.
func (s *session) handleChat(ctx context.Context, chat model.ChatLine) {
	log.Debug().Str("game", s.game.ID).Str("room", chat.Room).
		Str("from", chat.Username).Str("text", chat.Text).Msg("Chat")

	if strings.EqualFold(chat.Username, s.o.username) {
		return
	}
	reply := s.chatReply(chat.Text)
	if reply == "" {
		return
	}
	if err := s.o.sink.Chat(ctx, s.game.ID, chat.Room, reply); err != nil {
		log.Debug().Err(err).Str("game", s.game.ID).Msg("Chat reply failed")
	}
}

func (s *session) chatReply(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "!name":
		return "squire " + Version + " (github.com/freeeve/squire)"
	case "!howto":
		return "Challenge me on the site and I will accept if I have a free slot."
	case "!eval":
		return "I don't share evaluations during the game, sorry."
	case "!queue":
		return "Send a challenge and I will queue it if I am busy."
	default:
		return ""
	}
}
