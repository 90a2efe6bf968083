package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps channel settings in process memory. Used by tests and
// ephemeral runs.
type MemoryStore struct {
	mu           sync.RWMutex
	instructions map[string]string
	active       map[string]bool
}

// NewMemoryStore creates an empty in-memory settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instructions: make(map[string]string),
		active:       make(map[string]bool),
	}
}

func (s *MemoryStore) Instructions(_ context.Context, channel string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if text, ok := s.instructions[channel]; ok && text != "" {
		return text, nil
	}
	return defaultInstructions(channel), nil
}

func (s *MemoryStore) SetInstructions(_ context.Context, channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions[channel] = text
	return nil
}

func (s *MemoryStore) Active(_ context.Context, channel string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[channel], nil
}

func (s *MemoryStore) SetActive(_ context.Context, channel string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[channel] = active
	return nil
}
