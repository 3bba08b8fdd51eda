package cardstore

import (
	"context"
	"sync"
)

// MemoryStore keeps cards in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	cards []Card
}

// NewMemoryStore creates a MemoryStore seeded with cards.
func NewMemoryStore(cards ...Card) *MemoryStore {
	return &MemoryStore{cards: append([]Card(nil), cards...)}
}

// List returns a copy of all cards.
func (s *MemoryStore) List(ctx context.Context) ([]Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Card(nil), s.cards...), nil
}

// Create appends card.
func (s *MemoryStore) Create(ctx context.Context, card Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, card)
	return nil
}

// Update replaces the card at index.
func (s *MemoryStore) Update(ctx context.Context, index int, card Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.cards) {
		return indexError("update", index, len(s.cards))
	}
	s.cards[index] = card
	return nil
}
