package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PixelKind is the numeric representation of samples, expressed as a FITS
// BITPIX code. Only two kinds are supported.
type PixelKind int32

// Supported pixel kinds.
const (
	// PixelInt16 is a signed 16-bit integer sample (FITS SHORT_IMG).
	PixelInt16 PixelKind = 16
	// PixelFloat32 is an IEEE 754 single precision sample (FITS FLOAT_IMG).
	PixelFloat32 PixelKind = -32
)

// ErrUnsupportedPixelKind is returned when a frame declares a BITPIX other
// than PixelInt16 or PixelFloat32.
var ErrUnsupportedPixelKind = errors.New("unsupported pixel kind")

// Validate returns ErrUnsupportedPixelKind (wrapped with the offending code)
// when k is not a supported kind.
func (k PixelKind) Validate() error {
	switch k {
	case PixelInt16, PixelFloat32:
		return nil
	default:
		return fmt.Errorf("%w: bitpix=%d", ErrUnsupportedPixelKind, int32(k))
	}
}

// BytesPerPixel returns abs(bitpix)/8.
func (k PixelKind) BytesPerPixel() int {
	b := int(k)
	if b < 0 {
		b = -b
	}
	return b / 8
}

// String returns a short name for the kind.
func (k PixelKind) String() string {
	switch k {
	case PixelInt16:
		return "int16"
	case PixelFloat32:
		return "float32"
	default:
		return fmt.Sprintf("bitpix(%d)", int32(k))
	}
}

// Chunk pixel bytes are little-endian samples of the frame's pixel kind.

// Int16Pixels encodes samples into the chunk byte layout.
func Int16Pixels(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Float32Pixels encodes samples into the chunk byte layout.
func Float32Pixels(samples []float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
	return out
}

// DecodeInt16 decodes chunk bytes into int16 samples.
// A trailing odd byte is ignored.
func DecodeInt16(pix []byte) []int16 {
	out := make([]int16, len(pix)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pix[2*i:]))
	}
	return out
}

// DecodeFloat32 decodes chunk bytes into float32 samples.
func DecodeFloat32(pix []byte) []float32 {
	out := make([]float32, len(pix)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(pix[4*i:]))
	}
	return out
}
