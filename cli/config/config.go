package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents an imagestream.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Name      string          `yaml:"name"`
	Mirror    bool            `yaml:"mirror"`
	Stream    StreamConfig    `yaml:"stream"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Status    StatusConfig    `yaml:"status"`
}

// StreamConfig selects the live event transport.
type StreamConfig struct {
	Type    string   `yaml:"type"`
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Codec   string   `yaml:"codec,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// RetrievalConfig configures the process retrieval server.
type RetrievalConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`
}

// ArchiveConfig holds archival storage defaults. An empty Backend
// disables archival.
type ArchiveConfig struct {
	Backend      string   `yaml:"backend"`
	Path         string   `yaml:"path"`
	Region       string   `yaml:"region"`
	Endpoint     string   `yaml:"endpoint"`
	S3PathStyle  bool     `yaml:"s3_path_style"`
	Compression  string   `yaml:"compression"`
	Queue        int      `yaml:"queue,omitempty"`
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`
}

// AdapterConfig holds frame-archived notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// StatusConfig selects where retrieval ports are published.
type StatusConfig struct {
	Type string   `yaml:"type"`
	URL  string   `yaml:"url"`
	TTL  Duration `yaml:"ttl,omitempty"`
}

// Stream transport types.
const (
	StreamRedis  = "redis"
	StreamMemory = "memory"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Status poster types.
const (
	StatusRedis = "redis"
	StatusNone  = "none"
)

// Validate checks that every type selector names a known value and that
// URL-backed selections carry a URL.
func (c *Config) Validate() error {
	var errs []error
	switch c.Stream.Type {
	case "", StreamMemory:
	case StreamRedis:
		if c.Stream.URL == "" {
			errs = append(errs, errors.New("stream.url is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("stream.type %q must be redis or memory", c.Stream.Type))
	}
	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q must be webhook or redis", c.Adapter.Type))
	}
	switch c.Status.Type {
	case "", StatusNone:
	case StatusRedis:
		if c.Status.URL == "" && c.Stream.URL == "" {
			errs = append(errs, errors.New("status.url is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("status.type %q must be redis or none", c.Status.Type))
	}
	if c.Archive.Queue < 0 {
		errs = append(errs, fmt.Errorf("archive.queue must be >= 0, got %d", c.Archive.Queue))
	}
	return errors.Join(errs...)
}

// StatusURL returns the status redis URL, falling back to the stream URL.
func (c *Config) StatusURL() string {
	if c.Status.URL != "" {
		return c.Status.URL
	}
	return c.Stream.URL
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
