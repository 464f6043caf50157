package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process history store used when no database is
// configured. History lives for the process lifetime only.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]Turn)}
}

func (s *MemoryStore) Append(_ context.Context, ownerID string, turn Turn) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(turn.Text) == "" {
		return ErrEmptyText
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	turn.Owner = ownerID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[ownerID] = append(s.turns[ownerID], turn)
	return nil
}

func (s *MemoryStore) LastK(_ context.Context, ownerID string, k int) ([]Turn, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwner
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[ownerID]
	if len(arr) == 0 || k <= 0 {
		return nil, nil
	}
	if k > len(arr) {
		k = len(arr)
	}
	// Copy so callers never alias the internal slice.
	out := make([]Turn, k)
	copy(out, arr[len(arr)-k:])
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrEmptyOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, ownerID)
	return nil
}

func (s *MemoryStore) QueryBySubstring(_ context.Context, ownerID, substring string) ([]Turn, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwner
	}
	needle := strings.ToLower(substring)

	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[ownerID]
	out := make([]Turn, 0, len(arr))
	for _, t := range arr {
		if needle == "" || strings.Contains(strings.ToLower(t.Text), needle) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
