package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs hands out predictable transaction ids: "<prefix>-0001",
// "<prefix>-0002", and so on. It satisfies staging.IDGenerator.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix means "txn".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "txn"
	}
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next id.
func (g *SequenceIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n), nil
}
