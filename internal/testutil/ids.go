package testutil

import (
	"fmt"
	"sync"
)

// SeqGenerator generates ids of the form "<prefix>-<n>", n starting at 1.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with a fresh SeqGenerator produces identical ids.
//
// Unlike domain.FixedGenerator, which panics once its list is exhausted,
// SeqGenerator never runs out.
//
// Thread-safety: safe for concurrent use.
type SeqGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqGenerator creates a generator. If prefix is empty, "id" is used.
func NewSeqGenerator(prefix string) *SeqGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SeqGenerator{prefix: prefix}
}

// NewID implements domain.IDGenerator.
func (g *SeqGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
