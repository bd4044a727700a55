// Package display reconstructs frames from the live event stream.
//
// An Assembler consumes events in publish order. Live DATA samples are
// raw, so bzero is added on arrival exactly as the handler's buffer does.
// Sequence numbers skipped on the stream, and DATA events that only carry
// the truncated byte encoding, are queued and fetched again through the
// retrieval channel. Retrieved tiles already include bzero and are stored
// unchanged.
package display

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/pithecene-io/imagestream/framebuf"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/retrieval"
	"github.com/pithecene-io/imagestream/stream"
	"github.com/pithecene-io/imagestream/types"
)

// Fetcher re-fetches a chunk by sequence number. *retrieval.Client
// implements it.
type Fetcher interface {
	Retrieve(ctx context.Context, channel string, count uint32) (*types.Event, error)
}

// ErrNoFrame is returned for frame events received before any HEADER.
var ErrNoFrame = errors.New("no frame header received")

// Options configures an Assembler.
type Options struct {
	// Channel is the retrieval channel, normally "<name>Req".
	Channel string
	// Fetcher re-fetches pending chunks. Without one nothing is refetched.
	Fetcher Fetcher
	// Eager refetches pending chunks as soon as they are detected rather
	// than when the frame is done.
	Eager  bool
	Logger *log.Logger
}

// Progress is a point-in-time view of the current frame.
type Progress struct {
	FrameID string          `json:"frame_id"`
	Name    string          `json:"name"`
	Width   uint32          `json:"width"`
	Height  uint32          `json:"height"`
	Kind    types.PixelKind `json:"bitpix"`
	LastSeq uint32          `json:"last_seq"`
	// Chunks counts tiles stored from the live stream.
	Chunks int `json:"chunks"`
	// Gaps counts sequence numbers skipped on the stream.
	Gaps int `json:"gaps"`
	// Truncated counts DATA events received in the byte encoding.
	Truncated int `json:"truncated"`
	// Refetched counts tiles stored from the retrieval channel.
	Refetched int `json:"refetched"`
	// Pending lists sequence numbers still awaiting a refetch.
	Pending []uint32 `json:"pending,omitempty"`
	// Ignored counts events that did not belong to a known frame.
	Ignored int  `json:"ignored"`
	Done    bool `json:"done"`
}

// Assembler rebuilds one frame at a time. Apply and Refetch must be called
// from one goroutine; Progress and Tile may be called concurrently.
type Assembler struct {
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	buf      *framebuf.Buffer
	progress Progress
	lastSeq  uint32
	pending  map[uint32]struct{}
	wcs      *types.WCSHeader
}

// New creates an assembler.
func New(opts Options) *Assembler {
	return &Assembler{opts: opts, logger: opts.Logger, pending: make(map[uint32]struct{})}
}

// Apply consumes one event.
func (a *Assembler) Apply(ctx context.Context, ev *types.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if ev.Kind == types.KindHeader {
		err := a.reset(ev)
		a.mu.Unlock()
		return err
	}
	if a.buf == nil || ev.FrameID != a.progress.FrameID {
		a.progress.Ignored++
		a.mu.Unlock()
		return fmt.Errorf("%w: %s event seq %d for frame %q", ErrNoFrame, ev.Kind, ev.CountIn, ev.FrameID)
	}

	a.track(ev.CountIn)

	var err error
	switch ev.Kind {
	case types.KindWCS:
		w := *ev.WCS
		a.wcs = &w
	case types.KindData:
		err = a.applyLive(ev)
	case types.KindDone:
		a.progress.Done = true
	}
	refetch := a.opts.Fetcher != nil && len(a.pending) > 0 && (a.opts.Eager || a.progress.Done)
	a.mu.Unlock()

	if err != nil {
		return err
	}
	if refetch {
		return a.Refetch(ctx)
	}
	return nil
}

func (a *Assembler) reset(ev *types.Event) error {
	buf, err := framebuf.New(*ev.Header)
	if err != nil {
		return err
	}
	if a.buf != nil && !a.progress.Done {
		a.logger.Warn("frame superseded before done", map[string]any{
			"frame_id": a.progress.FrameID,
			"pending":  len(a.pending),
		})
	}
	a.buf = buf
	a.wcs = nil
	a.lastSeq = ev.CountIn
	clear(a.pending)
	a.progress = Progress{
		FrameID: ev.FrameID,
		Name:    ev.Header.Name,
		Width:   ev.Header.Width,
		Height:  ev.Header.Height,
		Kind:    ev.Header.Bitpix,
		LastSeq: ev.CountIn,
		Ignored: a.progress.Ignored,
	}
	return nil
}

// track records gaps between the last sequence number and seq. A late
// arrival of a pending sequence number clears it.
func (a *Assembler) track(seq uint32) {
	switch {
	case seq > a.lastSeq:
		for missing := a.lastSeq + 1; missing < seq; missing++ {
			a.pending[missing] = struct{}{}
			a.progress.Gaps++
		}
		a.lastSeq = seq
	default:
		delete(a.pending, seq)
	}
	a.progress.LastSeq = a.lastSeq
}

func (a *Assembler) applyLive(ev *types.Event) error {
	sh := ev.Data.SubHeader
	data := ev.Data.Data
	if data.Tag == types.ArrayU8 {
		a.progress.Truncated++
		a.pending[ev.CountIn] = struct{}{}
		return nil
	}

	chunk := &types.ImageChunk{XO: sh.XO, YO: sh.YO, X: sh.X, Y: sh.Y, Width: sh.W, Height: sh.H}
	switch data.Tag {
	case types.ArrayI16:
		chunk.Pix = types.Int16Pixels(data.I16)
	case types.ArrayF32:
		chunk.Pix = types.Float32Pixels(data.F32)
	}
	if err := a.buf.Write(chunk); err != nil {
		return fmt.Errorf("apply chunk %d: %w", ev.CountIn, err)
	}
	a.progress.Chunks++
	return nil
}

// Refetch retrieves every pending sequence number. Sequence numbers the
// server does not know are dropped; they belong to HEADER, WCS or
// COMPRESSION events. Other failures leave the number pending and are
// returned joined.
func (a *Assembler) Refetch(ctx context.Context) error {
	if a.opts.Fetcher == nil {
		return nil
	}

	a.mu.Lock()
	frameID := a.progress.FrameID
	seqs := slices.Sorted(maps.Keys(a.pending))
	a.mu.Unlock()

	var errs []error
	for _, seq := range seqs {
		ev, err := a.opts.Fetcher.Retrieve(ctx, a.opts.Channel, seq)
		if retrieval.IsNotFound(err) {
			a.resolve(frameID, seq)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("refetch %d: %w", seq, err))
			continue
		}
		if err := a.store(frameID, seq, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Assembler) resolve(frameID string, seq uint32) {
	a.mu.Lock()
	if frameID == a.progress.FrameID {
		delete(a.pending, seq)
	}
	a.mu.Unlock()
}

func (a *Assembler) store(frameID string, seq uint32, ev *types.Event) error {
	if ev.Kind != types.KindData || ev.Data == nil {
		return fmt.Errorf("refetch %d: got %s event", seq, ev.Kind)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// The frame the request was made for may have been superseded.
	if frameID != a.progress.FrameID || ev.FrameID != frameID {
		a.logger.Debug("discarding refetched chunk for old frame", map[string]any{
			"frame_id": ev.FrameID,
			"seq":      seq,
		})
		return nil
	}
	sh := ev.Data.SubHeader
	tile, ok := types.TileFromArray(ev.Data.Data, sh.W, sh.H)
	if !ok {
		return fmt.Errorf("refetch %d: unusable %s array", seq, ev.Data.Data.Tag)
	}
	if err := a.buf.Put(sh.X, sh.Y, tile); err != nil {
		return fmt.Errorf("refetch %d: %w", seq, err)
	}
	delete(a.pending, seq)
	a.progress.Refetched++
	return nil
}

// Progress returns a snapshot of the current frame.
func (a *Assembler) Progress() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.progress
	p.Pending = slices.Sorted(maps.Keys(a.pending))
	return p
}

// Tile returns a copy of the reconstructed frame. ok is false before the
// first HEADER.
func (a *Assembler) Tile() (types.Tile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return types.Tile{}, false
	}
	h := a.buf.Header()
	tile, err := a.buf.Read(0, 0, h.Width, h.Height)
	return tile, err == nil
}

// WCS returns the world coordinates of the current frame, if any.
func (a *Assembler) WCS() *types.WCSHeader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wcs
}

// Run applies events from sub until its channel closes or ctx is done.
// onUpdate, when set, is called with a fresh snapshot after every event.
// Per-event errors are logged and do not stop the loop.
func (a *Assembler) Run(ctx context.Context, sub stream.Subscriber, onUpdate func(Progress)) error {
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := a.Apply(ctx, ev); err != nil {
				a.logger.Warn("event not applied", map[string]any{
					"seq":   ev.CountIn,
					"dtype": ev.Kind.String(),
					"error": err.Error(),
				})
			}
			if onUpdate != nil {
				onUpdate(a.Progress())
			}
		}
	}
}
