// Package memory implements an in-process stream with per-subscriber
// buffers. A subscriber whose buffer is full misses the event; the miss is
// counted in its Stats and shows up as a sequence gap downstream.
package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/imagestream/stream"
	"github.com/pithecene-io/imagestream/types"
)

// DefaultBuffer is the subscriber buffer used when Subscribe gets 0.
const DefaultBuffer = 256

// Errors returned by the bus.
var (
	ErrSubscriberExists   = errors.New("subscriber already exists")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// Stats counts deliveries for one subscriber.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	bus   *Bus
	id    string
	ch    chan *types.Event
	sent  atomic.Uint64
	drops atomic.Uint64
	once  sync.Once
}

func (s *subscriber) Events() <-chan *types.Event {
	return s.ch
}

func (s *subscriber) Close() error {
	s.bus.remove(s.id)
	return nil
}

// Bus fans events out to in-process subscribers.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished atomic.Uint64
	closed         bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Publish offers ev to every subscriber without blocking. Subscribers
// all receive ev itself.
func (b *Bus) Publish(ctx context.Context, ev *types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return stream.ErrClosed
	}
	b.totalPublished.Add(1)

	for _, s := range b.subscribers {
		select {
		case s.ch <- ev:
			s.sent.Add(1)
		default:
			s.drops.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscriber with the given buffer size.
func (b *Bus) Subscribe(id string, buffer int) (stream.Subscriber, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, stream.ErrClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}
	s := &subscriber{bus: b, id: id, ch: make(chan *types.Event, buffer)}
	b.subscribers[id] = s
	return s, nil
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	s, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if ok {
		s.once.Do(func() { close(s.ch) })
	}
}

// Stats returns delivery counters for a subscriber.
func (b *Bus) Stats(id string) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.subscribers[id]
	if !ok {
		return Stats{}, ErrSubscriberNotFound
	}
	return Stats{Sent: s.sent.Load(), Dropped: s.drops.Load()}, nil
}

// Published returns the number of accepted events.
func (b *Bus) Published() uint64 {
	return b.totalPublished.Load()
}

// Close closes every subscriber. Later publishes fail with
// stream.ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
	return nil
}

var _ stream.Publisher = (*Bus)(nil)
