// Package redis implements the live stream over Redis pub/sub.
//
// Events are encoded with a wire codec and PUBLISHed to
// imagestream:<name>. Publish retries with exponential backoff only when
// Retries > 0; by default a failed publish is returned to the caller.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/imagestream/iox"
	"github.com/pithecene-io/imagestream/stream"
	"github.com/pithecene-io/imagestream/types"
	"github.com/pithecene-io/imagestream/wire"
)

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultBackoff is the first retry delay; later retries double it.
const DefaultBackoff = 500 * time.Millisecond

// Config configures the Redis stream.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel (required), usually stream.ChannelName(name).
	Channel string
	// Codec defaults to wire.DefaultCodec.
	Codec wire.Codec
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts after a failure (default 0).
	Retries int
	// Backoff is the first retry delay (default 500ms).
	Backoff time.Duration
}

func (c *Config) normalize() (*goredis.Options, error) {
	if c.URL == "" {
		return nil, errors.New("redis stream requires a URL")
	}
	opts, err := goredis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("redis stream: invalid URL: %w", err)
	}
	if c.Channel == "" {
		return nil, errors.New("redis stream requires a channel")
	}
	if c.Codec == nil {
		c.Codec = wire.DefaultCodec
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	return opts, nil
}

// Publisher publishes events via Redis PUBLISH.
type Publisher struct {
	config Config
	client *goredis.Client
}

// NewPublisher creates a publisher from cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Publisher{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish encodes ev and publishes it to the configured channel.
func (p *Publisher) Publish(ctx context.Context, ev *types.Event) error {
	body, err := p.config.Codec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = iox.Retry(ctx, p.config.Retries, p.config.Backoff, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
		return p.client.Publish(publishCtx, p.config.Channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Subscriber decodes events received on a Redis channel.
type Subscriber struct {
	client  *goredis.Client
	pubsub  *goredis.PubSub
	out     chan *types.Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	decodes atomic.Uint64
	onError func(error)
}

// SubscribeOption configures a Subscriber.
type SubscribeOption func(*Subscriber)

// WithDecodeErrorHandler receives payloads that fail to decode.
func WithDecodeErrorHandler(fn func(error)) SubscribeOption {
	return func(s *Subscriber) { s.onError = fn }
}

// Subscribe subscribes to cfg.Channel and waits for the subscription to be
// confirmed.
func Subscribe(ctx context.Context, cfg Config, opts ...SubscribeOption) (*Subscriber, error) {
	ropts, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(ropts)
	ps := client.Subscribe(ctx, cfg.Channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", cfg.Channel, err)
	}

	s := &Subscriber{
		client: client,
		pubsub: ps,
		out:    make(chan *types.Event, 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.loop(cfg.Codec)
	return s, nil
}

func (s *Subscriber) loop(codec wire.Codec) {
	defer s.wg.Done()
	defer close(s.out)

	msgs := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev types.Event
			if err := codec.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.decodes.Add(1)
				if s.onError != nil {
					s.onError(fmt.Errorf("redis: decode event: %w", err))
				}
				continue
			}
			select {
			case s.out <- &ev:
			case <-s.done:
				return
			}
		}
	}
}

// Events returns the decoded event channel.
func (s *Subscriber) Events() <-chan *types.Event {
	return s.out
}

// DecodeErrors returns the number of payloads that failed to decode.
func (s *Subscriber) DecodeErrors() uint64 {
	return s.decodes.Load()
}

// Close unsubscribes and waits for the receive loop to exit.
func (s *Subscriber) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = errors.Join(s.pubsub.Close(), s.client.Close())
		s.wg.Wait()
	})
	return err
}

// Verify interface conformance.
var (
	_ stream.Publisher  = (*Publisher)(nil)
	_ stream.Subscriber = (*Subscriber)(nil)
)
