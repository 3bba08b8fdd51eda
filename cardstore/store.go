// Package cardstore persists cards and broadcasts listing invalidation to
// other screens.
package cardstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a positional reference does not name a card.
var ErrNotFound = errors.New("card not found")

// Card is a logical card record.
type Card struct {
	Identifier string `yaml:"identifier" json:"identifier"`
	Name       string `yaml:"name" json:"name"`
}

// Store is the persistence collaborator used by the card editor. Cards are
// addressed by their position in List. Writes are last-write-wins.
type Store interface {
	List(ctx context.Context) ([]Card, error)
	Create(ctx context.Context, card Card) error
	Update(ctx context.Context, index int, card Card) error
}

func indexError(op string, index, n int) error {
	return fmt.Errorf("%s card %d of %d: %w", op, index, n, ErrNotFound)
}
