package types

import (
	"errors"
	"fmt"
)

// FrameHeader is one frame's static metadata. It is set once per frame
// session and is immutable until the frame is done.
type FrameHeader struct {
	// Name is the name of this image.
	Name string `msgpack:"name" json:"name"`
	// Width is the frame width in pixels.
	Width uint32 `msgpack:"width" json:"width"`
	// Height is the frame height in pixels.
	Height uint32 `msgpack:"height" json:"height"`
	// Bitpix is the FITS BITPIX code; selects the pixel kind.
	Bitpix PixelKind `msgpack:"bitpix" json:"bitpix"`
	// BZero is the FITS zero offset added to every stored sample.
	BZero float64 `msgpack:"bzero" json:"bzero"`
	// BScale is the FITS scale factor. Carried, never applied.
	BScale float64 `msgpack:"bscale" json:"bscale"`
	// ObservingMode is an instrument-specific observing mode code.
	ObservingMode int32 `msgpack:"observing_mode" json:"observing_mode"`
	// Beam is the telescope beam in an ABBA-style observation ("A", "B").
	Beam string `msgpack:"beam" json:"beam"`
	// ObsSequenceNum is the index of this observation in the cycle.
	ObsSequenceNum int32 `msgpack:"obs_sequence_num" json:"obs_sequence_num"`
	// Cycle is the cycle in a multi-cycle observation.
	Cycle int32 `msgpack:"cycle" json:"cycle"`
	// NCycles is the number of cycles in the full observation.
	NCycles int32 `msgpack:"n_cycles" json:"n_cycles"`
	// Compress selects the truncated byte encoding for live DATA events.
	Compress bool `msgpack:"compress" json:"compress"`
}

// NewFrameHeader returns a header with the default metadata values used
// by instruments that only know their geometry: bscale 1, beam "A", and a
// single one-step cycle.
func NewFrameHeader(name string, width, height uint32, bitpix PixelKind) FrameHeader {
	return FrameHeader{
		Name:           name,
		Width:          width,
		Height:         height,
		Bitpix:         bitpix,
		BScale:         1.0,
		Beam:           "A",
		ObsSequenceNum: 1,
		Cycle:          1,
		NCycles:        1,
	}
}

// ErrInvalidDimensions is returned for frames with a zero width or height.
var ErrInvalidDimensions = errors.New("frame width and height must be > 0")

// Validate checks geometry and pixel kind.
func (h *FrameHeader) Validate() error {
	if err := h.Bitpix.Validate(); err != nil {
		return err
	}
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, h.Width, h.Height)
	}
	return nil
}

// FrameBytes returns width*height*bytesPerPixel.
func (h *FrameHeader) FrameBytes() int {
	return int(h.Width) * int(h.Height) * h.Bitpix.BytesPerPixel()
}

// WCSHeader is the world coordinate system metadata for a frame.
type WCSHeader struct {
	CType1   string     `msgpack:"ctype1" json:"ctype1"`
	CUnit1   string     `msgpack:"cunit1" json:"cunit1"`
	CRVal1   float64    `msgpack:"crval1" json:"crval1"`
	CRPix1   float64    `msgpack:"crpix1" json:"crpix1"`
	CD1      [2]float64 `msgpack:"cd1" json:"cd1"`
	CType2   string     `msgpack:"ctype2" json:"ctype2"`
	CUnit2   string     `msgpack:"cunit2" json:"cunit2"`
	CRVal2   float64    `msgpack:"crval2" json:"crval2"`
	CRPix2   float64    `msgpack:"crpix2" json:"crpix2"`
	CD2      [2]float64 `msgpack:"cd2" json:"cd2"`
	RADecSys string     `msgpack:"radecsys" json:"radecsys"`
	Equinox  float64    `msgpack:"equinox" json:"equinox"`
	MJDObs   float64    `msgpack:"mjd_obs" json:"mjd_obs"`
}

// CompressionCodec identifies a CFITSIO tile compression algorithm.
type CompressionCodec int32

// CFITSIO compression codec codes.
const (
	CodecNone      CompressionCodec = -1
	CodecRice      CompressionCodec = 11
	CodecGzip1     CompressionCodec = 21
	CodecGzip2     CompressionCodec = 22
	CodecPLIO      CompressionCodec = 31
	CodecHCompress CompressionCodec = 41
	CodecBzip2     CompressionCodec = 51
)

// MaxCompressDim is the number of tile size axes CFITSIO accepts.
const MaxCompressDim = 6

// CompressionPrefs are requested transfer encoding preferences.
// They are advisory and never change how frames are reconstructed.
type CompressionPrefs struct {
	Codec            CompressionCodec `msgpack:"codec" json:"codec"`
	TileSize         []int64          `msgpack:"tile_size" json:"tile_size"`
	QuantizeLevel    float32          `msgpack:"quantize_level" json:"quantize_level"`
	QuantizeMethod   int32            `msgpack:"quantize_method" json:"quantize_method"`
	DitherSeed       int32            `msgpack:"dither_seed" json:"dither_seed"`
	LossyIntCompress int32            `msgpack:"lossy_int_compress" json:"lossy_int_compress"`
	HugeHDU          int32            `msgpack:"huge_hdu" json:"huge_hdu"`
	HCompScale       float32          `msgpack:"hcomp_scale" json:"hcomp_scale"`
	HCompSmooth      int32            `msgpack:"hcomp_smooth" json:"hcomp_smooth"`
}

// ImageChunk is one delivered tile of pixel data.
//
// The tile lands at column X+XO and row Y+YO of the frame. Pix holds
// Width*Height little-endian samples of the frame's pixel kind.
type ImageChunk struct {
	XO     uint32  `msgpack:"xo" json:"xo"`
	YO     uint32  `msgpack:"yo" json:"yo"`
	X      uint32  `msgpack:"x" json:"x"`
	Y      uint32  `msgpack:"y" json:"y"`
	Width  uint32  `msgpack:"w" json:"w"`
	Height uint32  `msgpack:"h" json:"h"`
	LCut   float64 `msgpack:"lcut" json:"lcut"`
	HCut   float64 `msgpack:"hcut" json:"hcut"`
	Pix    []byte  `msgpack:"pix" json:"pix"`
}

// Samples returns Width*Height.
func (c *ImageChunk) Samples() int {
	return int(c.Width) * int(c.Height)
}

// ChunkRecord is the retrievable description of a delivered chunk.
type ChunkRecord struct {
	Seq    uint32 `msgpack:"seq" json:"seq"`
	XO     uint32 `msgpack:"xo" json:"xo"`
	YO     uint32 `msgpack:"yo" json:"yo"`
	X      uint32 `msgpack:"x" json:"x"`
	Y      uint32 `msgpack:"y" json:"y"`
	Width  uint32 `msgpack:"w" json:"w"`
	Height uint32 `msgpack:"h" json:"h"`
}

// RecordFor builds the directory entry for chunk c delivered at seq.
func RecordFor(seq uint32, c *ImageChunk) ChunkRecord {
	return ChunkRecord{
		Seq:    seq,
		XO:     c.XO,
		YO:     c.YO,
		X:      c.X,
		Y:      c.Y,
		Width:  c.Width,
		Height: c.Height,
	}
}
