// Package stream defines the live event channel between an image handler
// and its display and archival subscribers.
package stream

import (
	"context"
	"errors"

	"github.com/pithecene-io/imagestream/types"
)

// Publisher delivers events to all current subscribers of a channel.
// Publish returns once the transport has accepted the event; delivery to
// individual subscribers is not confirmed.
type Publisher interface {
	Publish(ctx context.Context, ev *types.Event) error
	Close() error
}

// Subscriber receives events in publish order. The channel is closed when
// the subscriber is closed or the transport ends. In-process transports
// deliver the published pointer to every subscriber; events are read-only.
type Subscriber interface {
	Events() <-chan *types.Event
	Close() error
}

// ErrClosed is returned by operations on a closed stream.
var ErrClosed = errors.New("stream closed")

// ChannelPrefix namespaces handler channels on shared transports.
const ChannelPrefix = "imagestream:"

// ChannelName returns the transport channel for a handler name.
func ChannelName(name string) string {
	return ChannelPrefix + name
}
