// Package retrieval serves out-of-band chunk re-fetch requests over TCP.
//
// Each connection carries exactly one request and one response, both as
// length-prefixed frames (see package wire). A request names the channel
// it targets and the sequence number to retrieve:
//
//	{"channel": "gpiReq", "count": 17}
//
// The response carries either the DATA event or a classified error.
//
// One Server is shared by every handler in the process; use Start and
// Stop to acquire and release it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pithecene-io/imagestream/agent"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/types"
	"github.com/pithecene-io/imagestream/wire"
)

// Service answers retrieval requests for one channel.
type Service interface {
	Request(ctx context.Context, args map[string]any) (*types.Event, error)
}

// ChannelField is the request field selecting the target channel.
const ChannelField = "channel"

// Error kinds carried in Response.Kind.
const (
	KindBadRequest     = "bad_request"
	KindUnknownChannel = "unknown_channel"
	KindChunkNotFound  = "chunk_not_found"
	KindInternal       = "internal"
)

// Response is the wire envelope for every reply.
type Response struct {
	OK    bool         `msgpack:"ok" json:"ok"`
	Error string       `msgpack:"error,omitempty" json:"error,omitempty"`
	Kind  string       `msgpack:"kind,omitempty" json:"kind,omitempty"`
	Count uint32       `msgpack:"count,omitempty" json:"count,omitempty"`
	Size  int          `msgpack:"size,omitempty" json:"size,omitempty"`
	Event *types.Event `msgpack:"event,omitempty" json:"event,omitempty"`
}

// Defaults for Config.
const (
	DefaultAddr           = "127.0.0.1:0"
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxRequestSize = 64 * 1024
)

// Config configures a Server.
type Config struct {
	// Addr is the TCP listen address. Port 0 lets the system choose.
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int
	// Codec encodes request and response payloads.
	Codec wire.Codec
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = DefaultMaxRequestSize
	}
	if c.Codec == nil {
		c.Codec = wire.DefaultCodec
	}
	return c
}

// ErrChannelRegistered is returned when a channel already has a service.
var ErrChannelRegistered = errors.New("channel already registered")

// Server dispatches requests to registered channel services.
type Server struct {
	cfg    Config
	logger *log.Logger

	mu       sync.RWMutex
	services map[string]Service

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc

	// activeConnections tracks in-flight handlers for Close.
	activeConnections sync.WaitGroup
}

// NewServer creates a server. Call Listen to start accepting.
func NewServer(cfg Config, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		services: make(map[string]Service),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Listen binds the listener and starts the accept loop.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.logger.Info("retrieval server listening", map[string]any{"addr": ln.Addr().String()})

	s.activeConnections.Add(1)
	go func() {
		defer s.activeConnections.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Port returns the bound TCP port, or 0 before Listen.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Register routes requests for channel to svc.
func (s *Server) Register(channel string, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[channel]; exists {
		return fmt.Errorf("%w: %q", ErrChannelRegistered, channel)
	}
	s.services[channel] = svc
	return nil
}

// Unregister removes the service for channel.
func (s *Server) Unregister(channel string) {
	s.mu.Lock()
	delete(s.services, channel)
	s.mu.Unlock()
}

// Channels returns the number of registered channels.
func (s *Server) Channels() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.services)
}

// Close stops accepting, cancels in-flight requests and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.cancel()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	s.activeConnections.Wait()
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", map[string]any{"error": err.Error()})
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	var req map[string]any
	dec := wire.NewFrameDecoder(conn).WithLimit(s.cfg.MaxRequestSize)
	if err := wire.ReadValue(dec, s.cfg.Codec, &req); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.write(conn, &Response{Kind: KindBadRequest, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	channel, _ := req[ChannelField].(string)
	if channel == "" {
		s.write(conn, &Response{Kind: KindBadRequest, Error: "missing required field: channel"})
		return
	}

	s.mu.RLock()
	svc, exists := s.services[channel]
	s.mu.RUnlock()
	if !exists {
		s.write(conn, &Response{Kind: KindUnknownChannel, Error: fmt.Sprintf("unknown channel %q", channel)})
		return
	}

	ev, err := svc.Request(s.ctx, req)
	if err != nil {
		s.logger.Debug("retrieval failed", map[string]any{
			"channel": channel,
			"error":   err.Error(),
		})
		s.write(conn, errorResponse(err))
		return
	}
	s.write(conn, &Response{OK: true, Event: ev})
}

func errorResponse(err error) *Response {
	var nf *agent.ChunkNotFoundError
	switch {
	case errors.As(err, &nf):
		return &Response{Kind: KindChunkNotFound, Error: err.Error(), Count: nf.Count, Size: nf.Size}
	case errors.Is(err, agent.ErrMissingCount), errors.Is(err, agent.ErrInvalidCount):
		return &Response{Kind: KindBadRequest, Error: err.Error()}
	default:
		return &Response{Kind: KindInternal, Error: err.Error()}
	}
}

func (s *Server) write(conn net.Conn, resp *Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := wire.WriteValue(conn, s.cfg.Codec, resp); err != nil {
		s.logger.Debug("failed to write response", map[string]any{"error": err.Error()})
	}
}

// Process-scoped server shared by all handlers.
var (
	procMu   sync.Mutex
	proc     *Server
	procRefs int
)

// Start returns the process server, creating and binding it on first use.
// Subsequent calls return the same server and add a reference; cfg is
// ignored once the server exists.
func Start(cfg Config, logger *log.Logger) (*Server, error) {
	procMu.Lock()
	defer procMu.Unlock()

	if proc != nil {
		procRefs++
		return proc, nil
	}
	s := NewServer(cfg, logger)
	if err := s.Listen(); err != nil {
		return nil, err
	}
	proc = s
	procRefs = 1
	return s, nil
}

// Stop releases one reference taken by Start. The server is closed when
// the last reference is released. Stop without a running server is a
// no-op.
func Stop() error {
	procMu.Lock()
	defer procMu.Unlock()

	if proc == nil {
		return nil
	}
	procRefs--
	if procRefs > 0 {
		return nil
	}
	s := proc
	proc = nil
	procRefs = 0
	return s.Close()
}

// Running returns the process server, or nil when none is running.
func Running() *Server {
	procMu.Lock()
	defer procMu.Unlock()
	return proc
}
