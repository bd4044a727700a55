package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pithecene-io/imagestream/agent"
	"github.com/pithecene-io/imagestream/types"
	"github.com/pithecene-io/imagestream/wire"
)

// Sentinel errors for remote failures. A *RemoteError matches the
// sentinel for its kind.
var (
	ErrNotFound       = errors.New("chunk not found")
	ErrBadRequest     = errors.New("bad request")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrInternal       = errors.New("internal server error")
	// ErrUnavailable wraps dial and I/O failures talking to the server.
	ErrUnavailable = errors.New("retrieval server unavailable")
)

// RemoteError is a classified failure returned by the server.
type RemoteError struct {
	Kind    string
	Message string
	// Count and Size are set for chunk_not_found.
	Count uint32
	Size  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("retrieval %s: %s", e.Kind, e.Message)
}

// Is maps the error kind to its sentinel.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case KindChunkNotFound:
		return target == ErrNotFound
	case KindBadRequest:
		return target == ErrBadRequest
	case KindUnknownChannel:
		return target == ErrUnknownChannel
	default:
		return target == ErrInternal
	}
}

// IsNotFound reports whether err is a chunk_not_found reply or an
// in-process agent.ChunkNotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, agent.ErrChunkNotFound)
}

// DefaultClientTimeout bounds one call when ctx has no deadline.
const DefaultClientTimeout = 10 * time.Second

// Client issues retrieval requests.
type Client struct {
	addr    string
	codec   wire.Codec
	timeout time.Duration
	dialer  net.Dialer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCodec sets the payload codec. It must match the server's.
func WithCodec(c wire.Codec) ClientOption {
	return func(cl *Client) { cl.codec = c }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient creates a client for the server at addr.
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{addr: addr, codec: wire.DefaultCodec, timeout: DefaultClientTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Retrieve fetches chunk count from channel.
func (c *Client) Retrieve(ctx context.Context, channel string, count uint32) (*types.Event, error) {
	resp, err := c.Call(ctx, map[string]any{ChannelField: channel, "count": count})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &RemoteError{Kind: resp.Kind, Message: resp.Error, Count: resp.Count, Size: resp.Size}
	}
	if resp.Event == nil {
		return nil, &RemoteError{Kind: KindInternal, Message: "response has no event"}
	}
	return resp.Event, nil
}

// Call sends a raw request and returns the decoded response envelope.
func (c *Client) Call(ctx context.Context, req map[string]any) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock I/O on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := wire.WriteValue(conn, c.codec, req); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", ErrUnavailable, err)
	}

	var resp Response
	if err := wire.ReadValue(wire.NewFrameDecoder(conn), c.codec, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	return &resp, nil
}
