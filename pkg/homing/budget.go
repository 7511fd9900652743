package homing

import (
	"sync"

	"radscan-go-migration/pkg/errors"
)

// FullBudget is one token per axis.
const FullBudget = 3

// Budget is the token bag of axes not yet homed. Consuming a token
// marks one axis homed; zero remaining means fully referenced.
type Budget struct {
	mu     sync.Mutex
	tokens int
}

// NewBudget creates a budget with all tokens present.
func NewBudget() *Budget {
	return &Budget{tokens: FullBudget}
}

// Consume retires one token.
func (b *Budget) Consume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens > 0 {
		b.tokens--
	}
}

// Remaining returns the number of unhomed axes.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Reset refills the budget to force re-homing. Permitted only when
// the budget is fully consumed; resetting mid-homing must fail.
func (b *Budget) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens != 0 {
		return errors.RehomeError(b.tokens)
	}
	b.tokens = FullBudget
	return nil
}
