package prompt

import (
	"errors"
	"strings"

	"github.com/ellahq/ella/internal/history"
)

// Message is the provider-agnostic role/content pair sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrMissingPersona = errors.New("prompt: persona instruction is empty")
	ErrEmptyMessage   = errors.New("prompt: new message is empty")
)

// Assemble builds the ordered upstream context: one system entry carrying the
// persona instruction, the history suffix mapped to roles in original order,
// and the new (not yet stored) user message as the final entry.
//
// Deterministic: identical inputs always yield the identical message list.
func Assemble(persona string, turns []history.Turn, newMessage string) ([]Message, error) {
	if strings.TrimSpace(persona) == "" {
		return nil, ErrMissingPersona
	}
	if strings.TrimSpace(newMessage) == "" {
		return nil, ErrEmptyMessage
	}

	messages := make([]Message, 0, len(turns)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: persona})

	for _, turn := range turns {
		role := RoleUser
		if turn.Speaker == history.SpeakerAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn.Text})
	}

	messages = append(messages, Message{Role: RoleUser, Content: newMessage})
	return messages, nil
}
