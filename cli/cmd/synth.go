package cmd

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pithecene-io/imagestream/types"
)

// framePlan describes the synthetic frames simulate emits.
type framePlan struct {
	width, height      uint32
	kind               types.PixelKind
	tileCols, tileRows uint32
	bzero              float64
	compress           bool
	wcs                bool
	codec              types.CompressionCodec
	seed               uint64
}

var fitsCodecs = map[string]types.CompressionCodec{
	"none":      types.CodecNone,
	"rice":      types.CodecRice,
	"gzip1":     types.CodecGzip1,
	"gzip2":     types.CodecGzip2,
	"plio":      types.CodecPLIO,
	"hcompress": types.CodecHCompress,
	"bzip2":     types.CodecBzip2,
}

func parseFITSCodec(name string) (types.CompressionCodec, error) {
	if name == "" {
		return 0, nil
	}
	c, ok := fitsCodecs[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("invalid --fits-codec %q (must be none, rice, gzip1, gzip2, plio, hcompress or bzip2)", name)
	}
	return c, nil
}

func parsePixelKind(bitpix int) (types.PixelKind, error) {
	k := types.PixelKind(bitpix)
	if err := k.Validate(); err != nil {
		return 0, fmt.Errorf("invalid --bitpix %d (must be 16 or -32)", bitpix)
	}
	return k, nil
}

func (p framePlan) header(name string) types.FrameHeader {
	h := types.NewFrameHeader(name, p.width, p.height, p.kind)
	h.BZero = p.bzero
	h.Compress = p.compress
	return h
}

// raster returns the raw samples of frame n: a diagonal ramp with a
// bright square in the middle and a little seeded noise.
func (p framePlan) raster(n int) types.Tile {
	rng := rand.New(rand.NewPCG(p.seed, uint64(n)))
	w, h := int(p.width), int(p.height)
	t := types.Tile{Kind: p.kind, Width: p.width, Height: p.height}
	vals := make([]float64, 0, w*h)
	for y := range h {
		for x := range w {
			v := float64((x+2*y+13*n)%400) + float64(rng.IntN(8))
			if x > w/3 && x < 2*w/3 && y > h/3 && y < 2*h/3 {
				v += 1000
			}
			vals = append(vals, v)
		}
	}
	switch p.kind {
	case types.PixelInt16:
		t.I16 = make([]int16, len(vals))
		for i, v := range vals {
			t.I16[i] = int16(v)
		}
	case types.PixelFloat32:
		t.F32 = make([]float32, len(vals))
		for i, v := range vals {
			t.F32[i] = float32(v) / 4
		}
	}
	return t
}

// biased returns raw with the frame bzero applied the way the frame
// buffer stores it.
func (p framePlan) biased(raw types.Tile) types.Tile {
	out := types.Tile{Kind: raw.Kind, Width: raw.Width, Height: raw.Height}
	switch raw.Kind {
	case types.PixelInt16:
		bias := int16(int64(p.bzero))
		out.I16 = make([]int16, len(raw.I16))
		for i, v := range raw.I16 {
			out.I16[i] = v + bias
		}
	case types.PixelFloat32:
		bias := float32(p.bzero)
		out.F32 = make([]float32, len(raw.F32))
		for i, v := range raw.F32 {
			out.F32[i] = v + bias
		}
	}
	return out
}

// chunks cuts raw into tiles of p.tileCols x p.tileRows in row-major
// order. A zero tile size covers the whole axis.
func (p framePlan) chunks(raw types.Tile) []*types.ImageChunk {
	cols, rows := p.tileCols, p.tileRows
	if cols == 0 || cols > p.width {
		cols = p.width
	}
	if rows == 0 || rows > p.height {
		rows = p.height
	}
	var out []*types.ImageChunk
	for y := uint32(0); y < p.height; y += rows {
		th := min(rows, p.height-y)
		for x := uint32(0); x < p.width; x += cols {
			tw := min(cols, p.width-x)
			out = append(out, &types.ImageChunk{
				X: x, Y: y, Width: tw, Height: th,
				Pix: tilePixels(raw, x, y, tw, th),
			})
		}
	}
	return out
}

func tilePixels(raw types.Tile, x, y, w, h uint32) []byte {
	stride := int(raw.Width)
	switch raw.Kind {
	case types.PixelFloat32:
		s := make([]float32, 0, int(w)*int(h))
		for r := range int(h) {
			start := (int(y)+r)*stride + int(x)
			s = append(s, raw.F32[start:start+int(w)]...)
		}
		return types.Float32Pixels(s)
	default:
		s := make([]int16, 0, int(w)*int(h))
		for r := range int(h) {
			start := (int(y)+r)*stride + int(x)
			s = append(s, raw.I16[start:start+int(w)]...)
		}
		return types.Int16Pixels(s)
	}
}

// wcsFor returns a tangent-plane WCS centred on the frame, drifting in
// right ascension from frame to frame.
func (p framePlan) wcsFor(n int) types.WCSHeader {
	const scale = 0.2 / 3600 // degrees per pixel
	return types.WCSHeader{
		CType1:   "RA---TAN",
		CUnit1:   "deg",
		CRVal1:   83.8221 + float64(n)*0.001,
		CRPix1:   float64(p.width)/2 + 0.5,
		CD1:      [2]float64{-scale, 0},
		CType2:   "DEC--TAN",
		CUnit2:   "deg",
		CRVal2:   -5.3911,
		CRPix2:   float64(p.height)/2 + 0.5,
		CD2:      [2]float64{0, scale},
		RADecSys: "FK5",
		Equinox:  2000,
		MJDObs:   61000 + float64(n)/86400,
	}
}

func (p framePlan) prefs() *types.CompressionPrefs {
	if p.codec == 0 {
		return nil
	}
	return &types.CompressionPrefs{
		Codec:    p.codec,
		TileSize: []int64{int64(p.tileCols), int64(p.tileRows)},
	}
}

func tilesEqual(a, b types.Tile) bool {
	if a.Kind != b.Kind || a.Width != b.Width || a.Height != b.Height {
		return false
	}
	switch a.Kind {
	case types.PixelFloat32:
		if len(a.F32) != len(b.F32) {
			return false
		}
		for i := range a.F32 {
			if a.F32[i] != b.F32[i] {
				return false
			}
		}
	default:
		if len(a.I16) != len(b.I16) {
			return false
		}
		for i := range a.I16 {
			if a.I16[i] != b.I16[i] {
				return false
			}
		}
	}
	return true
}
