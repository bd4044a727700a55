// Package framebuf reconstructs a full frame raster from tiled chunk
// deliveries.
//
// A Buffer is owned by one frame session. It is not safe for concurrent
// use; the session controller serializes access.
package framebuf

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/imagestream/types"
)

// Sentinel errors for chunk validation.
var (
	// ErrOutOfBounds indicates a rectangle that does not lie within the frame.
	ErrOutOfBounds = errors.New("chunk out of bounds")
	// ErrPixelLength indicates pixel bytes that do not match the tile size.
	ErrPixelLength = errors.New("pixel data length mismatch")
)

// Option configures a Buffer.
type Option func(*Buffer)

// WithMirror enables the in-memory FITS mirror.
func WithMirror() Option {
	return func(b *Buffer) { b.mirrorEnabled = true }
}

// WithMirrorErrorHandler sets the callback receiving mirror failures.
// Mirror failures never fail Write.
func WithMirrorErrorHandler(fn func(error)) Option {
	return func(b *Buffer) { b.onMirrorErr = fn }
}

// Buffer holds the reconstructed raster for one frame.
type Buffer struct {
	header types.FrameHeader
	i16    []int16
	f32    []float32

	mirrorEnabled bool
	mirror        *Mirror
	onMirrorErr   func(error)
}

// New allocates a zeroed raster of header.Width x header.Height samples.
func New(header types.FrameHeader, opts ...Option) (*Buffer, error) {
	if err := header.Validate(); err != nil {
		return nil, err
	}

	b := &Buffer{header: header}
	for _, opt := range opts {
		opt(b)
	}

	n := int(header.Width) * int(header.Height)
	switch header.Bitpix {
	case types.PixelInt16:
		b.i16 = make([]int16, n)
	case types.PixelFloat32:
		b.f32 = make([]float32, n)
	}

	if b.mirrorEnabled {
		m, err := NewMirror(header)
		if err != nil {
			b.reportMirror(fmt.Errorf("create mirror: %w", err))
		} else {
			b.mirror = m
		}
	}
	return b, nil
}

// Header returns the frame header the buffer was built for.
func (b *Buffer) Header() types.FrameHeader {
	return b.header
}

// Kind returns the buffer's pixel kind.
func (b *Buffer) Kind() types.PixelKind {
	return b.header.Bitpix
}

// Size returns the raster size in bytes: width*height*bytesPerPixel.
func (b *Buffer) Size() int {
	return b.header.FrameBytes()
}

// Mirror returns the FITS mirror, or nil when disabled or unavailable.
func (b *Buffer) Mirror() *Mirror {
	return b.mirror
}

// CheckChunk validates a chunk against the frame without writing it.
func (b *Buffer) CheckChunk(c *types.ImageChunk) error {
	want := c.Samples() * b.header.Bitpix.BytesPerPixel()
	if len(c.Pix) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d %s tile",
			ErrPixelLength, len(c.Pix), want, c.Width, c.Height, b.header.Bitpix)
	}
	return b.checkRect(uint64(c.X)+uint64(c.XO), uint64(c.Y)+uint64(c.YO), c.Width, c.Height)
}

func (b *Buffer) checkRect(x, y uint64, w, h uint32) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: empty %dx%d rectangle", ErrOutOfBounds, w, h)
	}
	if x+uint64(w) > uint64(b.header.Width) || y+uint64(h) > uint64(b.header.Height) {
		return fmt.Errorf("%w: %dx%d at (%d,%d) exceeds %dx%d frame",
			ErrOutOfBounds, w, h, x, y, b.header.Width, b.header.Height)
	}
	return nil
}

// Write copies the chunk into the raster at (X+XO, Y+YO), adding the
// frame's bzero to every sample in the sample's native arithmetic. The
// chunk is validated before any sample is stored; a rejected chunk leaves
// the raster untouched.
func (b *Buffer) Write(c *types.ImageChunk) error {
	if err := b.CheckChunk(c); err != nil {
		return err
	}

	x0 := int(c.X + c.XO)
	y0 := int(c.Y + c.YO)
	w := int(c.Width)
	stride := int(b.header.Width)

	switch b.header.Bitpix {
	case types.PixelInt16:
		src := types.DecodeInt16(c.Pix)
		bias := int16Bias(b.header.BZero)
		for r := range int(c.Height) {
			row := src[r*w : (r+1)*w]
			dst := b.i16[(y0+r)*stride+x0 : (y0+r)*stride+x0+w]
			for j, s := range row {
				dst[j] = s + bias
			}
		}
	case types.PixelFloat32:
		src := types.DecodeFloat32(c.Pix)
		bias := float32(b.header.BZero)
		for r := range int(c.Height) {
			row := src[r*w : (r+1)*w]
			dst := b.f32[(y0+r)*stride+x0 : (y0+r)*stride+x0+w]
			for j, s := range row {
				dst[j] = s + bias
			}
		}
	}

	if b.mirror != nil {
		if err := b.mirror.WriteChunk(c); err != nil {
			b.reportMirror(err)
		}
	}
	return nil
}

// int16Bias converts bzero to the 16-bit addend. Values outside the int16
// range wrap, so the conventional unsigned offset 32768 becomes -32768 and
// produces the same bit pattern as unsigned addition.
func int16Bias(bzero float64) int16 {
	return int16(int64(bzero))
}

// Read returns a newly allocated copy of the w x h rectangle at (x, y).
// Samples are returned as stored; bzero is not applied again.
func (b *Buffer) Read(x, y, w, h uint32) (types.Tile, error) {
	if err := b.checkRect(uint64(x), uint64(y), w, h); err != nil {
		return types.Tile{}, err
	}

	tile := types.Tile{Kind: b.header.Bitpix, Width: w, Height: h}
	stride := int(b.header.Width)
	width := int(w)

	switch b.header.Bitpix {
	case types.PixelInt16:
		tile.I16 = make([]int16, 0, tile.Len())
		for r := range int(h) {
			start := (int(y)+r)*stride + int(x)
			tile.I16 = append(tile.I16, b.i16[start:start+width]...)
		}
	case types.PixelFloat32:
		tile.F32 = make([]float32, 0, tile.Len())
		for r := range int(h) {
			start := (int(y)+r)*stride + int(x)
			tile.F32 = append(tile.F32, b.f32[start:start+width]...)
		}
	}
	return tile, nil
}

// Put stores tile at (x, y) as given, without adding bzero. It is the
// inverse of Read and does not touch the mirror.
func (b *Buffer) Put(x, y uint32, tile types.Tile) error {
	if tile.Kind != b.header.Bitpix {
		return fmt.Errorf("%w: %s tile for %s frame", ErrPixelLength, tile.Kind, b.header.Bitpix)
	}
	n := len(tile.I16)
	if tile.Kind == types.PixelFloat32 {
		n = len(tile.F32)
	}
	if n != tile.Len() {
		return fmt.Errorf("%w: got %d samples, want %d for %dx%d tile",
			ErrPixelLength, n, tile.Len(), tile.Width, tile.Height)
	}
	if err := b.checkRect(uint64(x), uint64(y), tile.Width, tile.Height); err != nil {
		return err
	}

	stride := int(b.header.Width)
	w := int(tile.Width)
	for r := range int(tile.Height) {
		start := (int(y)+r)*stride + int(x)
		switch tile.Kind {
		case types.PixelInt16:
			copy(b.i16[start:start+w], tile.I16[r*w:(r+1)*w])
		case types.PixelFloat32:
			copy(b.f32[start:start+w], tile.F32[r*w:(r+1)*w])
		}
	}
	return nil
}

// SetWCS forwards world coordinate metadata to the mirror header.
func (b *Buffer) SetWCS(wcs types.WCSHeader) {
	if b.mirror == nil {
		return
	}
	if err := b.mirror.SetWCS(wcs); err != nil {
		b.reportMirror(err)
	}
}

// MirrorBytes returns a copy of the FITS container, or nil when the mirror
// is disabled.
func (b *Buffer) MirrorBytes() []byte {
	if b.mirror == nil {
		return nil
	}
	return b.mirror.Bytes()
}

func (b *Buffer) reportMirror(err error) {
	if b.onMirrorErr != nil {
		b.onMirrorErr(err)
	}
}
