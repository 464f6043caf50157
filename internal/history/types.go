package history

import (
	"context"
	"errors"
	"time"
)

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is a single utterance in a conversation. A turn is immutable once
// appended; CreatedAt is advisory only, insertion order is authoritative.
type Turn struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Redacted  bool      `json:"redacted"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrEmptyOwner = errors.New("history: owner id is empty")
	ErrEmptyText  = errors.New("history: turn text is empty")
)

// Store persists and retrieves per-owner conversation history.
//
// Implementations must serialize concurrent operations on the same owner so
// that appends are atomic and never reorder.
type Store interface {
	// Append adds turn to the end of ownerID's sequence, creating the
	// sequence when absent.
	Append(ctx context.Context, ownerID string, turn Turn) error
	// LastK returns the last k turns in original order, fewer if the
	// history is shorter, and an empty slice for an unknown owner.
	LastK(ctx context.Context, ownerID string, k int) ([]Turn, error)
	// Clear removes the owner's entire sequence; no-op when absent.
	Clear(ctx context.Context, ownerID string) error
	// QueryBySubstring returns all turns whose text contains substring
	// (case-insensitive), preserving order. Diagnostic use only.
	QueryBySubstring(ctx context.Context, ownerID, substring string) ([]Turn, error)
	Close() error
}
