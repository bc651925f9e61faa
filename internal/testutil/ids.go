package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out predictable record ids ("<prefix>-0001",
// "<prefix>-0002", ...) so WAL files written in tests are byte-stable.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "rec".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "rec"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next id.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
