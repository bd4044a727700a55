// Package status publishes named status items, such as the port a
// handler's retrieval channel listens on, for other processes to read.
package status

import (
	"context"
	"maps"
	"sync"
)

// Poster publishes a status item. Implementations must be safe for
// concurrent use.
type Poster interface {
	Post(ctx context.Context, item string, value any) error
}

// Nop discards every item.
type Nop struct{}

// Post does nothing.
func (Nop) Post(context.Context, string, any) error { return nil }

// Memory keeps items in process.
type Memory struct {
	mu    sync.Mutex
	items map[string]any
}

// NewMemory returns an empty Memory poster.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]any)}
}

// Post stores value under item.
func (m *Memory) Post(_ context.Context, item string, value any) error {
	m.mu.Lock()
	m.items[item] = value
	m.mu.Unlock()
	return nil
}

// Get returns the value posted for item.
func (m *Memory) Get(item string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[item]
	return v, ok
}

// Items returns a copy of all posted items.
func (m *Memory) Items() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.items)
}
