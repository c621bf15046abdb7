package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator yields predictable sequential identifiers.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix, next: 1}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%d", g.prefix, g.next)
	g.next++
	return id
}

// NextFunc exposes Next for injection into service constructors.
func (g *IDGenerator) NextFunc() func() string {
	return g.Next
}
