// Package redis publishes frame archive notifications as JSON on a Redis
// pub/sub channel.
//
// The channel may contain a {name} placeholder, replaced by the image
// handler name of each event, so subscribers can follow one instrument
// with SUBSCRIBE or all of them with PSUBSCRIBE.
package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/imagestream/adapter"
	"github.com/pithecene-io/imagestream/iox"
	"github.com/pithecene-io/imagestream/stream"
)

// NamePlaceholder in a channel is replaced by the event's handler name.
const NamePlaceholder = "{name}"

// DefaultChannel is used when Config.Channel is empty.
const DefaultChannel = stream.ChannelPrefix + adapter.EventTypeFrameArchived

// Defaults applied by New.
const (
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db]. Required.
	URL     string
	Channel string
	// Timeout bounds each PUBLISH attempt.
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter publishes archive notifications with PUBLISH.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg, fills in defaults and connects lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	cfg.Channel = cmp.Or(cfg.Channel, DefaultChannel)
	cfg.Timeout = cmp.Or(cfg.Timeout, DefaultTimeout)
	cfg.Backoff = cmp.Or(cfg.Backoff, DefaultBackoff)
	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Channel returns the configured channel, placeholder included.
func (a *Adapter) Channel() string {
	return a.cfg.Channel
}

// ChannelFor returns the channel event is published on.
func (a *Adapter) ChannelFor(event *adapter.FrameArchivedEvent) string {
	return strings.ReplaceAll(a.cfg.Channel, NamePlaceholder, event.Name)
}

// Publish sends event to its channel, retrying connection failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.FrameArchivedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.ChannelFor(event)

	err = iox.Retry(ctx, a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		return a.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("redis %s: %w", channel, err)
	}
	return nil
}

// Close releases the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
