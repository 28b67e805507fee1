package conversation

import (
	"context"
	"strings"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RolePatient   Role = "patient"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry in a conversation log.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SessionStore keeps the ordered turn log per channel session key. Get on an
// unknown key returns an empty log, never an error.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]Turn, error)
	Append(ctx context.Context, key string, turn Turn) error
	Clear(ctx context.Context, key string) error
}

// toChatMessages drops blank turns and folds consecutive turns of the same
// role into one message, so a patient turn left without a reply by a failed
// completion still replays as an alternating sequence.
func toChatMessages(turns []Turn) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := ChatRoleUser
		if t.Role == RoleAssistant {
			role = ChatRoleAssistant
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n" + text
			continue
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: text})
	}
	return msgs
}
