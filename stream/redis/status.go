package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/imagestream/status"
)

// StatusKeyPrefix namespaces status item keys.
const StatusKeyPrefix = "imagestream:status:"

// StatusPoster stores status items as Redis string keys.
type StatusPoster struct {
	client  *goredis.Client
	timeout time.Duration
	ttl     time.Duration
}

// NewStatusPoster connects to url. A ttl of zero keeps items until
// overwritten.
func NewStatusPoster(url string, ttl time.Duration) (*StatusPoster, error) {
	if url == "" {
		return nil, errors.New("redis status requires a URL")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis status: invalid URL: %w", err)
	}
	return &StatusPoster{client: goredis.NewClient(opts), timeout: DefaultTimeout, ttl: ttl}, nil
}

// Post sets StatusKeyPrefix+item to value.
func (p *StatusPoster) Post(ctx context.Context, item string, value any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Set(ctx, StatusKeyPrefix+item, fmt.Sprint(value), p.ttl).Err(); err != nil {
		return fmt.Errorf("redis: post status %s: %w", item, err)
	}
	return nil
}

// ErrNoStatus is returned by Lookup for items that were never posted or
// have expired.
var ErrNoStatus = errors.New("status item not set")

// Lookup returns the value last posted for item.
func (p *StatusPoster) Lookup(ctx context.Context, item string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	v, err := p.client.Get(ctx, StatusKeyPrefix+item).Result()
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNoStatus, item)
	}
	if err != nil {
		return "", fmt.Errorf("redis: lookup status %s: %w", item, err)
	}
	return v, nil
}

// Close releases the client.
func (p *StatusPoster) Close() error {
	return p.client.Close()
}

var _ status.Poster = (*StatusPoster)(nil)
