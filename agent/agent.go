// Package agent implements the frame session controller.
//
// An Agent sequences HEADER, WCS, COMPRESSION, DATA and DONE events onto a
// publish channel, reconstructs the frame in a framebuf.Buffer, and answers
// retrieval requests for previously delivered chunks. Every operation,
// retrieval included, runs under one mutex per Agent, so sequence
// assignment order, publish order and directory insertion order coincide.
package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/imagestream/chunkdir"
	"github.com/pithecene-io/imagestream/framebuf"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/metrics"
	"github.com/pithecene-io/imagestream/types"
)

// Publisher delivers events to subscribers. ev may be handed to
// subscribers as is and shares its WCS and compression values with the
// agent, so neither Publish nor a subscriber may modify it.
type Publisher interface {
	Publish(ctx context.Context, ev *types.Event) error
}

// Archiver accepts completed frames. Submit must not block; it returns
// false when the frame was not accepted.
type Archiver interface {
	Submit(snap types.FrameSnapshot) bool
}

// State is the session state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateActive
)

// String returns the state name.
func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// DefaultPublishTimeout bounds a single publish call.
const DefaultPublishTimeout = 5 * time.Second

// Options configures an Agent.
type Options struct {
	// Publisher receives every event. Required.
	Publisher Publisher
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
	// Mirror enables the in-memory FITS mirror of each frame.
	Mirror bool
	// Archiver receives completed frames when Mirror is set. May be nil.
	Archiver Archiver
	// PublishTimeout bounds each publish. Zero uses DefaultPublishTimeout;
	// negative disables the bound.
	PublishTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// NewFrameID defaults to a random UUID.
	NewFrameID func() string
}

// Agent is the session controller for one image channel.
type Agent struct {
	mu sync.Mutex

	pub      Publisher
	logger   *log.Logger
	metrics  *metrics.Collector
	mirror   bool
	archiver Archiver
	timeout  time.Duration
	now      func() time.Time
	newID    func() string

	state   State
	seq     uint32
	frameID string
	header  types.FrameHeader
	wcs     *types.WCSHeader
	prefs   *types.CompressionPrefs
	buf     *framebuf.Buffer
	dir     *chunkdir.Directory
}

// New creates an idle Agent.
func New(opts Options) (*Agent, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("agent: publisher is required")
	}
	a := &Agent{
		pub:      opts.Publisher,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		mirror:   opts.Mirror,
		archiver: opts.Archiver,
		timeout:  opts.PublishTimeout,
		now:      opts.Now,
		newID:    opts.NewFrameID,
		dir:      chunkdir.New(),
	}
	if a.logger == nil {
		a.logger = log.Nop()
	}
	if a.timeout == 0 {
		a.timeout = DefaultPublishTimeout
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a, nil
}

// Start begins a new frame session. It validates the header, allocates a
// fresh buffer and an empty chunk directory, and publishes HEADER with
// sequence number 1. An unfinished frame is superseded. On failure the
// previous session is left as it was.
func (a *Agent) Start(ctx context.Context, header types.FrameHeader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := header.Validate(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	bufOpts := []framebuf.Option{framebuf.WithMirrorErrorHandler(a.mirrorFailed)}
	if a.mirror {
		bufOpts = append(bufOpts, framebuf.WithMirror())
	}
	buf, err := framebuf.New(header, bufOpts...)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	frameID := a.newID()
	ev := types.NewEvent(frameID, types.KindHeader, 1, a.now())
	h := header
	ev.Header = &h
	if err := a.publish(ctx, ev); err != nil {
		return err
	}

	if a.state == StateActive {
		a.metrics.IncFrameSuperseded()
		a.logger.Warn("unfinished frame superseded", map[string]any{
			"frame_id": a.frameID,
			"seq":      a.seq,
			"chunks":   a.dir.Len(),
		})
	}

	a.state = StateActive
	a.seq = 1
	a.frameID = frameID
	a.header = header
	a.wcs = nil
	a.prefs = nil
	a.buf = buf
	a.dir = chunkdir.New()

	a.metrics.IncFrameStarted()
	a.logger.Info("frame started", map[string]any{
		"frame_id": frameID,
		"name":     header.Name,
		"width":    header.Width,
		"height":   header.Height,
		"bitpix":   int32(header.Bitpix),
	})
	return nil
}

// TransferWCS publishes world coordinate metadata for the active frame.
func (a *Agent) TransferWCS(ctx context.Context, wcs types.WCSHeader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireActive("transfer wcs"); err != nil {
		return err
	}

	seq := a.seq + 1
	ev := types.NewEvent(a.frameID, types.KindWCS, seq, a.now())
	w := wcs
	ev.WCS = &w
	if err := a.publish(ctx, ev); err != nil {
		return err
	}

	a.seq = seq
	a.wcs = &w
	a.buf.SetWCS(w)
	return nil
}

// SetCompressionPrefs records advisory transfer encoding preferences and
// publishes them. They never change how frames are reconstructed.
func (a *Agent) SetCompressionPrefs(ctx context.Context, prefs types.CompressionPrefs) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireActive("set compression prefs"); err != nil {
		return err
	}
	if len(prefs.TileSize) > types.MaxCompressDim {
		return fmt.Errorf("%w: %d tile axes, at most %d",
			ErrInvalidCompressionPrefs, len(prefs.TileSize), types.MaxCompressDim)
	}

	seq := a.seq + 1
	p := prefs
	p.TileSize = slices.Clone(prefs.TileSize)
	ev := types.NewEvent(a.frameID, types.KindCompression, seq, a.now())
	ev.Compression = &p
	if err := a.publish(ctx, ev); err != nil {
		return err
	}

	a.seq = seq
	a.prefs = &p
	return nil
}

// TransferData publishes one chunk, writes it into the frame buffer and
// records its placement. It returns the sequence number assigned to the
// chunk. A chunk that does not fit the frame is rejected before any
// sequence number is consumed.
func (a *Agent) TransferData(ctx context.Context, chunk *types.ImageChunk) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireActive("transfer data"); err != nil {
		return 0, err
	}
	if err := a.buf.CheckChunk(chunk); err != nil {
		a.metrics.IncChunkRejected()
		return 0, fmt.Errorf("transfer data: %w", err)
	}

	seq := a.seq + 1
	ev := types.NewEvent(a.frameID, types.KindData, seq, a.now())
	ev.Data = liveSubImage(a.header, chunk)
	if err := a.publish(ctx, ev); err != nil {
		return 0, err
	}

	a.seq = seq
	if err := a.buf.Write(chunk); err != nil {
		return seq, fmt.Errorf("transfer data: %w", err)
	}
	a.dir.Put(types.RecordFor(seq, chunk))
	a.metrics.IncChunkWritten()
	return seq, nil
}

// liveSubImage encodes a chunk for the live stream. Samples are sent raw;
// subscribers apply bzero themselves. With Compress set, the array holds
// only the first width*height bytes of the raw pixel data.
func liveSubImage(h types.FrameHeader, c *types.ImageChunk) *types.SubImage {
	sub := &types.SubImage{
		SubHeader: types.SubHeader{
			XO: c.XO, YO: c.YO,
			X: c.X, Y: c.Y,
			W: c.Width, H: c.Height,
			LCut: c.LCut, HCut: c.HCut,
		},
	}
	n := c.Samples()
	switch {
	case h.Compress:
		sub.Data = types.PixelArray{Tag: types.ArrayU8, U8: slices.Clone(c.Pix[:n])}
		sub.SubHeader.CLen = int64(n)
	case h.Bitpix == types.PixelFloat32:
		sub.Data = types.PixelArray{Tag: types.ArrayF32, F32: types.DecodeFloat32(c.Pix)}
	default:
		sub.Data = types.PixelArray{Tag: types.ArrayI16, I16: types.DecodeInt16(c.Pix)}
	}
	return sub
}

// Done publishes DONE and returns the agent to idle. The buffer and chunk
// directory stay readable for retrieval until the next Start.
func (a *Agent) Done(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireActive("done"); err != nil {
		return err
	}

	seq := a.seq + 1
	ev := types.NewEvent(a.frameID, types.KindDone, seq, a.now())
	ev.Close = &types.CloseHeader{}
	if err := a.publish(ctx, ev); err != nil {
		return err
	}

	a.seq = seq
	a.state = StateIdle
	a.metrics.IncFrameCompleted()
	a.logger.Info("frame done", map[string]any{
		"frame_id": a.frameID,
		"events":   seq,
		"chunks":   a.dir.Len(),
	})

	if a.archiver != nil && a.buf.Mirror() != nil {
		snap := types.FrameSnapshot{
			FrameID:     a.frameID,
			Header:      a.header,
			WCS:         a.wcs,
			Compression: a.prefs,
			Records:     a.dir.Records(),
			FITS:        a.buf.MirrorBytes(),
			Events:      seq,
			CompletedAt: a.now(),
		}
		if !a.archiver.Submit(snap) {
			a.logger.Warn("frame not archived", map[string]any{"frame_id": a.frameID})
		}
	}
	return nil
}

// CurrentSequence returns the last assigned sequence number, or 0 before
// the first Start.
func (a *Agent) CurrentSequence() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq
}

// Status is a point-in-time view of the session.
type Status struct {
	State    State
	FrameID  string
	Sequence uint32
	Chunks   int
	Header   types.FrameHeader
}

// Status returns the current session state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:    a.state,
		FrameID:  a.frameID,
		Sequence: a.seq,
		Chunks:   a.dir.Len(),
		Header:   a.header,
	}
}

func (a *Agent) requireActive(op string) error {
	if a.state != StateActive {
		a.metrics.IncSequencingError()
		return sequencingError(op)
	}
	return nil
}

func (a *Agent) publish(ctx context.Context, ev *types.Event) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if err := a.pub.Publish(ctx, ev); err != nil {
		a.metrics.IncPublishFailure()
		a.logger.Error("publish failed", map[string]any{
			"frame_id": ev.FrameID,
			"dtype":    ev.Kind.String(),
			"seq":      ev.CountIn,
			"error":    err.Error(),
		})
		return &TransportError{Kind: ev.Kind, Seq: ev.CountIn, Err: err}
	}
	a.metrics.IncPublished(ev.Kind.String())
	return nil
}

func (a *Agent) mirrorFailed(err error) {
	a.metrics.IncMirrorFailure()
	a.logger.Warn("fits mirror write failed", map[string]any{
		"error": err.Error(),
	})
}
