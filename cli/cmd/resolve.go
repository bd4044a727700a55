package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/archive"
	iconfig "github.com/pithecene-io/imagestream/cli/config"
	"github.com/pithecene-io/imagestream/stream"
)

// resolveString returns the flag value when set on the command line, else
// the config value when non-empty, else the flag default.
func resolveString(c *cli.Context, flag, configValue string) string {
	if c.IsSet(flag) || configValue == "" {
		return c.String(flag)
	}
	return configValue
}

func resolveInt(c *cli.Context, flag string, configValue int) int {
	if c.IsSet(flag) || configValue == 0 {
		return c.Int(flag)
	}
	return configValue
}

func resolveIntPtr(c *cli.Context, flag string, configValue *int) int {
	if c.IsSet(flag) || configValue == nil {
		return c.Int(flag)
	}
	return *configValue
}

func resolveBool(c *cli.Context, flag string, configValue bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return configValue || c.Bool(flag)
}

func resolveDuration(c *cli.Context, flag string, configValue time.Duration) time.Duration {
	if c.IsSet(flag) || configValue == 0 {
		return c.Duration(flag)
	}
	return configValue
}

// loadConfig loads --config, or returns an empty config when unset.
func loadConfig(c *cli.Context) (*iconfig.Config, error) {
	cfg, err := iconfig.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	return cfg, nil
}

// streamSettings is the resolved stream selection.
type streamSettings struct {
	name     string
	kind     string
	redisURL string
	channel  string
	codec    string
	timeout  time.Duration
	retries  int
}

func resolveStream(c *cli.Context, cfg *iconfig.Config) (streamSettings, error) {
	s := streamSettings{
		name:     resolveString(c, "name", cfg.Name),
		kind:     resolveString(c, "stream", cfg.Stream.Type),
		redisURL: resolveString(c, "redis-url", cfg.Stream.URL),
		channel:  resolveString(c, "channel", cfg.Stream.Channel),
		codec:    resolveString(c, "codec", cfg.Stream.Codec),
		timeout:  resolveDuration(c, "stream-timeout", cfg.Stream.Timeout.Duration),
		retries:  resolveIntPtr(c, "stream-retries", cfg.Stream.Retries),
	}
	if s.name == "" {
		return s, fmt.Errorf("--name is required (or set name in the config file)")
	}
	switch s.kind {
	case iconfig.StreamMemory:
	case iconfig.StreamRedis:
		if s.redisURL == "" {
			return s, fmt.Errorf("--redis-url is required for the redis stream")
		}
	default:
		return s, fmt.Errorf("invalid --stream %q (must be redis or memory)", s.kind)
	}
	if s.channel == "" {
		s.channel = stream.ChannelName(s.name)
	}
	return s, nil
}

// archiveSettings is the resolved archive store selection. An empty
// backend disables archival.
type archiveSettings struct {
	backend     string
	path        string
	region      string
	endpoint    string
	pathStyle   bool
	compression archive.Compression
	queue       int
	timeout     time.Duration
}

// resolveStore resolves the store location only.
func resolveStore(c *cli.Context, cfg *iconfig.Config) (archiveSettings, error) {
	a := archiveSettings{
		backend:   resolveString(c, "archive-backend", cfg.Archive.Backend),
		path:      resolveString(c, "archive-path", cfg.Archive.Path),
		region:    resolveString(c, "archive-region", cfg.Archive.Region),
		endpoint:  resolveString(c, "archive-endpoint", cfg.Archive.Endpoint),
		pathStyle: resolveBool(c, "archive-s3-path-style", cfg.Archive.S3PathStyle),
	}
	if a.backend != "" && a.backend != "memory" && a.path == "" {
		return a, fmt.Errorf("--archive-path is required for the %s archive backend", a.backend)
	}
	return a, nil
}

func resolveArchive(c *cli.Context, cfg *iconfig.Config) (archiveSettings, error) {
	a, err := resolveStore(c, cfg)
	if err != nil {
		return a, err
	}
	a.queue = resolveInt(c, "archive-queue", cfg.Archive.Queue)
	a.timeout = cfg.Archive.WriteTimeout.Duration
	name := cfg.Archive.Compression
	if c.IsSet("compression") || name == "" {
		name = c.String("compression")
	}
	comp, err := archive.ParseCompression(name)
	if err != nil {
		return a, err
	}
	a.compression = comp
	return a, nil
}

// adapterSettings is the resolved notification adapter selection.
type adapterSettings struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

func resolveAdapter(c *cli.Context, cfg *iconfig.Config) (adapterSettings, error) {
	a := adapterSettings{
		kind:    resolveString(c, "adapter", cfg.Adapter.Type),
		url:     resolveString(c, "adapter-url", cfg.Adapter.URL),
		channel: resolveString(c, "adapter-channel", cfg.Adapter.Channel),
		timeout: resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		retries: resolveIntPtr(c, "adapter-retries", cfg.Adapter.Retries),
		headers: map[string]string{},
	}
	for k, v := range cfg.Adapter.Headers {
		a.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return a, fmt.Errorf("invalid --adapter-header %q (want key=value)", h)
		}
		a.headers[k] = v
	}
	switch a.kind {
	case "":
	case iconfig.AdapterWebhook, iconfig.AdapterRedis:
		if a.url == "" {
			return a, fmt.Errorf("--adapter-url is required for the %s adapter", a.kind)
		}
	default:
		return a, fmt.Errorf("invalid --adapter %q (must be webhook or redis)", a.kind)
	}
	return a, nil
}

// statusSettings is the resolved status item store selection.
type statusSettings struct {
	kind string
	url  string
	ttl  time.Duration
}

func resolveStatus(c *cli.Context, cfg *iconfig.Config, fallbackURL string) (statusSettings, error) {
	s := statusSettings{
		kind: resolveString(c, "status", cfg.Status.Type),
		url:  resolveString(c, "status-url", cfg.Status.URL),
		ttl:  cfg.Status.TTL.Duration,
	}
	if s.url == "" {
		s.url = fallbackURL
	}
	switch s.kind {
	case "", iconfig.StatusNone:
		s.kind = iconfig.StatusNone
	case iconfig.StatusRedis:
		if s.url == "" {
			return s, fmt.Errorf("--status-url or --redis-url is required for redis status items")
		}
	default:
		return s, fmt.Errorf("invalid --status %q (must be redis or none)", s.kind)
	}
	return s, nil
}
