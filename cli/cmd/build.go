package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/adapter"
	"github.com/pithecene-io/imagestream/adapter/redis"
	"github.com/pithecene-io/imagestream/adapter/webhook"
	"github.com/pithecene-io/imagestream/archive"
	iconfig "github.com/pithecene-io/imagestream/cli/config"
	"github.com/pithecene-io/imagestream/lode"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/metrics"
	"github.com/pithecene-io/imagestream/status"
	"github.com/pithecene-io/imagestream/stream"
	"github.com/pithecene-io/imagestream/stream/memory"
	streamredis "github.com/pithecene-io/imagestream/stream/redis"
	"github.com/pithecene-io/imagestream/wire"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitError       = 1
	exitConfigError = 2
	// exitIncomplete reports frames that could not be fully reconstructed.
	exitIncomplete = 3
)

// usageError reports an invalid flag or config combination.
func usageError(err error) error {
	return cli.Exit(err.Error(), exitConfigError)
}

// closers releases components in reverse order of acquisition.
type closers []func() error

func (cs *closers) add(fn func() error) {
	*cs = append(*cs, fn)
}

func (cs closers) Close() error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		errs = append(errs, cs[i]())
	}
	return errors.Join(errs...)
}

func streamConfig(s streamSettings) (streamredis.Config, error) {
	codec, err := wire.Lookup(s.codec)
	if err != nil {
		return streamredis.Config{}, err
	}
	return streamredis.Config{
		URL:     s.redisURL,
		Channel: s.channel,
		Codec:   codec,
		Timeout: s.timeout,
		Retries: s.retries,
	}, nil
}

// openPublisher opens the live stream. For the memory transport the bus
// is returned as well so in-process subscribers can attach.
func openPublisher(s streamSettings) (stream.Publisher, *memory.Bus, error) {
	if s.kind == iconfig.StreamMemory {
		bus := memory.New()
		return bus, bus, nil
	}
	cfg, err := streamConfig(s)
	if err != nil {
		return nil, nil, err
	}
	pub, err := streamredis.NewPublisher(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

// openStatus returns the poster for status items.
func openStatus(s statusSettings) (status.Poster, func() error, error) {
	if s.kind != iconfig.StatusRedis {
		return status.Nop{}, func() error { return nil }, nil
	}
	p, err := streamredis.NewStatusPoster(s.url, s.ttl)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

// openStore opens the archive store: images as files, frame rows in the
// dataset on the same store.
func openStore(a archiveSettings) (*lode.Files, *lode.Records, error) {
	store, err := lode.Open(lode.Config{
		Backend: a.backend,
		Path:    a.path,
		S3: lode.S3Config{
			Region:       a.region,
			Endpoint:     a.endpoint,
			UsePathStyle: a.pathStyle,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	records, err := lode.NewRecords(store)
	if err != nil {
		return nil, nil, err
	}
	return lode.NewFiles(store), records, nil
}

// openAdapter returns the notification adapter, or nil when none is
// configured.
func openAdapter(s adapterSettings) (adapter.Adapter, error) {
	switch s.kind {
	case "":
		return nil, nil
	case iconfig.AdapterWebhook:
		return webhook.New(webhook.Config{
			URL:     s.url,
			Headers: s.headers,
			Timeout: s.timeout,
			Retries: s.retries,
		})
	case iconfig.AdapterRedis:
		return redis.New(redis.Config{
			URL:     s.url,
			Channel: s.channel,
			Timeout: s.timeout,
			Retries: s.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q", s.kind)
	}
}

// openArchiver builds the archive queue and its notifier. It returns nil
// when archival is disabled.
func openArchiver(a archiveSettings, ad adapterSettings, logger *log.Logger, m *metrics.Collector, cs *closers) (*archive.Queue, error) {
	if a.backend == "" {
		if ad.kind != "" {
			return nil, errors.New("--adapter requires an archive backend")
		}
		return nil, nil
	}
	files, records, err := openStore(a)
	if err != nil {
		return nil, err
	}
	notifier, err := openAdapter(ad)
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		cs.add(notifier.Close)
	}
	w := archive.NewWriter(
		lode.NewInstrumentedFiles(files, m),
		lode.NewInstrumentedRecords(records, m),
		a.compression,
	)
	q := archive.NewQueue(w, archive.QueueOptions{
		Size:         a.queue,
		WriteTimeout: a.timeout,
		Notifier:     notifier,
		Logger:       logger,
		Metrics:      m,
	})
	cs.add(q.Close)
	return q, nil
}

// newLogger returns the stderr logger for a handler, or a no-op logger
// when quiet.
func newLogger(name, channel string, quiet bool) *log.Logger {
	if quiet {
		return log.Nop()
	}
	return log.NewLogger(log.Identity{Handler: name, Channel: channel})
}
