// Package handler wires one named image channel: a session agent, its
// registration on the process retrieval server, and the status items
// clients use to find that server.
package handler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pithecene-io/imagestream/agent"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/metrics"
	"github.com/pithecene-io/imagestream/retrieval"
	"github.com/pithecene-io/imagestream/status"
	"github.com/pithecene-io/imagestream/stream"
	"github.com/pithecene-io/imagestream/types"
)

// Options configures a Handler.
type Options struct {
	// Publisher carries the live stream. Required.
	Publisher agent.Publisher
	Logger    *log.Logger
	Metrics   *metrics.Collector
	// Mirror enables the FITS mirror of each frame.
	Mirror bool
	// Archiver receives completed mirrored frames.
	Archiver       agent.Archiver
	PublishTimeout time.Duration
	// Retrieval configures the process retrieval server when this handler
	// is the first to start it.
	Retrieval retrieval.Config
	// Status receives the port items. Defaults to status.Nop.
	Status     status.Poster
	NewFrameID func() string
}

// Handler is a running image channel.
type Handler struct {
	name   string
	agent  *agent.Agent
	server *retrieval.Server
	logger *log.Logger

	closeOnce sync.Once
	closeErr  error
}

// RetrievalChannel returns the retrieval channel name for a handler.
func RetrievalChannel(name string) string {
	return name + "Req"
}

// PortItem returns the status item holding the retrieval port.
func PortItem(name string) string {
	return RetrievalChannel(name) + ".port"
}

// ServerPortItem returns the status item holding the server port.
func ServerPortItem(name string) string {
	return name + ".server_port"
}

// New creates the agent for name, acquires the process retrieval server
// and registers the channel on it. Status posting failures are logged and
// do not fail New.
func New(ctx context.Context, name string, opts Options) (*Handler, error) {
	if name == "" {
		return nil, fmt.Errorf("handler: name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	a, err := agent.New(agent.Options{
		Publisher:      opts.Publisher,
		Logger:         logger,
		Metrics:        opts.Metrics,
		Mirror:         opts.Mirror,
		Archiver:       opts.Archiver,
		PublishTimeout: opts.PublishTimeout,
		NewFrameID:     opts.NewFrameID,
	})
	if err != nil {
		return nil, err
	}

	srv, err := retrieval.Start(opts.Retrieval, logger)
	if err != nil {
		return nil, fmt.Errorf("handler %s: %w", name, err)
	}
	if err := srv.Register(RetrievalChannel(name), a); err != nil {
		_ = retrieval.Stop()
		return nil, fmt.Errorf("handler %s: %w", name, err)
	}

	h := &Handler{name: name, agent: a, server: srv, logger: logger}

	poster := opts.Status
	if poster == nil {
		poster = status.Nop{}
	}
	port := strconv.Itoa(srv.Port())
	for _, item := range []string{PortItem(name), ServerPortItem(name)} {
		if err := poster.Post(ctx, item, port); err != nil {
			logger.Warn("failed to post status item", map[string]any{
				"item":  item,
				"error": err.Error(),
			})
		}
	}

	logger.Info("handler ready", map[string]any{
		"name":    name,
		"stream":  stream.ChannelName(name),
		"channel": RetrievalChannel(name),
		"port":    srv.Port(),
	})
	return h, nil
}

// Name returns the handler name.
func (h *Handler) Name() string { return h.name }

// Port returns the retrieval server port.
func (h *Handler) Port() int { return h.server.Port() }

// Addr returns the retrieval server address.
func (h *Handler) Addr() string { return h.server.Addr().String() }

// Agent returns the underlying session agent.
func (h *Handler) Agent() *agent.Agent { return h.agent }

// Start begins a new frame.
func (h *Handler) Start(ctx context.Context, header types.FrameHeader) error {
	return h.agent.Start(ctx, header)
}

// TransferWCS publishes world coordinates for the current frame.
func (h *Handler) TransferWCS(ctx context.Context, wcs types.WCSHeader) error {
	return h.agent.TransferWCS(ctx, wcs)
}

// SetCompressionPrefs publishes advisory compression preferences.
func (h *Handler) SetCompressionPrefs(ctx context.Context, prefs types.CompressionPrefs) error {
	return h.agent.SetCompressionPrefs(ctx, prefs)
}

// TransferData publishes one chunk and returns its sequence number.
func (h *Handler) TransferData(ctx context.Context, chunk *types.ImageChunk) (uint32, error) {
	return h.agent.TransferData(ctx, chunk)
}

// Done completes the current frame.
func (h *Handler) Done(ctx context.Context) error {
	return h.agent.Done(ctx)
}

// Retrieve re-fetches a chunk in process.
func (h *Handler) Retrieve(ctx context.Context, seq uint32) (*types.Event, error) {
	return h.agent.Retrieve(ctx, seq)
}

// CurrentSequence returns the last assigned sequence number.
func (h *Handler) CurrentSequence() uint32 { return h.agent.CurrentSequence() }

// Status returns the agent session state.
func (h *Handler) Status() agent.Status { return h.agent.Status() }

// Close unregisters the retrieval channel and releases the server.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		h.server.Unregister(RetrievalChannel(h.name))
		h.closeErr = retrieval.Stop()
		h.logger.Info("handler closed", map[string]any{"name": h.name})
	})
	return h.closeErr
}
