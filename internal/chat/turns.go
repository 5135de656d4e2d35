// Package chat runs the interactive intake conversation: sessions, the
// completion call per message, and transcript persistence on end.
package chat

import "github.com/Lllllllleong/attachmentflow/internal/models"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn = models.TranscriptTurn

// AlternatingTurns keeps only the first turn of every run of consecutive
// same-role turns, so what reaches the completion API strictly alternates.
// [user, user, assistant, assistant, user] becomes [user, assistant, user].
func AlternatingTurns(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if len(out) > 0 && out[len(out)-1].Role == t.Role {
			continue
		}
		out = append(out, t)
	}
	return out
}
