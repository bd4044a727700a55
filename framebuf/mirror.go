package framebuf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pithecene-io/imagestream/types"
)

// FITS layout constants.
const (
	// BlockSize is the FITS logical record size.
	BlockSize = 2880
	cardSize  = 80
	maxCards  = BlockSize / cardSize
)

// ContainerSize returns the mirror size for a frame: the raster bytes plus
// one header block, rounded up to a whole number of blocks.
func ContainerSize(h types.FrameHeader) int {
	n := h.FrameBytes() + BlockSize
	return (n + BlockSize - 1) / BlockSize * BlockSize
}

// Mirror is an in-memory FITS primary HDU that receives the same chunk
// writes as the Buffer. Samples are stored raw (unbiased) in FITS
// big-endian order; BZERO is recorded in the header instead.
type Mirror struct {
	header types.FrameHeader
	wcs    *types.WCSHeader
	buf    []byte
}

// NewMirror allocates a zero-filled container and writes its header block.
func NewMirror(h types.FrameHeader) (*Mirror, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	m := &Mirror{header: h, buf: make([]byte, ContainerSize(h))}
	if err := m.writeHeader(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetWCS records world coordinate cards and rewrites the header block.
func (m *Mirror) SetWCS(wcs types.WCSHeader) error {
	m.wcs = &wcs
	return m.writeHeader()
}

// WriteChunk replays a chunk into the data unit row by row.
func (m *Mirror) WriteChunk(c *types.ImageChunk) error {
	bpp := m.header.Bitpix.BytesPerPixel()
	x0 := uint64(c.X) + uint64(c.XO)
	y0 := uint64(c.Y) + uint64(c.YO)
	if x0+uint64(c.Width) > uint64(m.header.Width) || y0+uint64(c.Height) > uint64(m.header.Height) {
		return fmt.Errorf("mirror: %w", ErrOutOfBounds)
	}
	if len(c.Pix) != c.Samples()*bpp {
		return fmt.Errorf("mirror: %w", ErrPixelLength)
	}

	rowBytes := int(c.Width) * bpp
	stride := int(m.header.Width)
	for r := range int(c.Height) {
		src := c.Pix[r*rowBytes : (r+1)*rowBytes]
		off := BlockSize + ((int(y0)+r)*stride+int(x0))*bpp
		dst := m.buf[off : off+rowBytes]
		switch bpp {
		case 2:
			for i := 0; i < rowBytes; i += 2 {
				binary.BigEndian.PutUint16(dst[i:], binary.LittleEndian.Uint16(src[i:]))
			}
		case 4:
			for i := 0; i < rowBytes; i += 4 {
				binary.BigEndian.PutUint32(dst[i:], binary.LittleEndian.Uint32(src[i:]))
			}
		}
	}
	return nil
}

// Bytes returns a copy of the full container.
func (m *Mirror) Bytes() []byte {
	out := make([]byte, len(m.buf))
	copy(out, m.buf)
	return out
}

// Len returns the container size in bytes.
func (m *Mirror) Len() int {
	return len(m.buf)
}

func (m *Mirror) writeHeader() error {
	h := m.header
	cards := []string{
		logicalCard("SIMPLE", true),
		intCard("BITPIX", int64(h.Bitpix)),
		intCard("NAXIS", 2),
		intCard("NAXIS1", int64(h.Width)),
		intCard("NAXIS2", int64(h.Height)),
		stringCard("OBJECT", h.Name),
		floatCard("BZERO", h.BZero),
		floatCard("BSCALE", h.BScale),
	}
	if w := m.wcs; w != nil {
		cards = append(cards,
			stringCard("CTYPE1", w.CType1),
			stringCard("CUNIT1", w.CUnit1),
			floatCard("CRVAL1", w.CRVal1),
			floatCard("CRPIX1", w.CRPix1),
			floatCard("CD1_1", w.CD1[0]),
			floatCard("CD1_2", w.CD1[1]),
			stringCard("CTYPE2", w.CType2),
			stringCard("CUNIT2", w.CUnit2),
			floatCard("CRVAL2", w.CRVal2),
			floatCard("CRPIX2", w.CRPix2),
			floatCard("CD2_1", w.CD2[0]),
			floatCard("CD2_2", w.CD2[1]),
			stringCard("RADECSYS", w.RADecSys),
			floatCard("EQUINOX", w.Equinox),
			floatCard("MJD-OBS", w.MJDObs),
		)
	}
	cards = append(cards, pad("END"))
	if len(cards) > maxCards {
		return fmt.Errorf("mirror header: %d cards exceed one block", len(cards))
	}

	block := m.buf[:BlockSize]
	for i := range block {
		block[i] = ' '
	}
	for i, c := range cards {
		copy(block[i*cardSize:], c)
	}
	return nil
}

func pad(s string) string {
	if len(s) >= cardSize {
		return s[:cardSize]
	}
	return s + strings.Repeat(" ", cardSize-len(s))
}

func keyword(k string) string {
	return fmt.Sprintf("%-8s= ", k)
}

// fixed-format values are right justified in columns 11-30.
func valueCard(k, v string) string {
	return pad(keyword(k) + fmt.Sprintf("%20s", v))
}

func logicalCard(k string, v bool) string {
	if v {
		return valueCard(k, "T")
	}
	return valueCard(k, "F")
}

func intCard(k string, v int64) string {
	return valueCard(k, strconv.FormatInt(v, 10))
}

func floatCard(k string, v float64) string {
	return valueCard(k, formatReal(v))
}

func stringCard(k, v string) string {
	q := strings.ReplaceAll(v, "'", "''")
	if len(q) < 8 {
		q += strings.Repeat(" ", 8-len(q))
	}
	if len(q) > 68 {
		q = q[:68]
	}
	return pad(keyword(k) + "'" + q + "'")
}

// formatReal renders v with a decimal point and an upper case exponent.
func formatReal(v float64) string {
	a := math.Abs(v)
	var s string
	if a == 0 || (a >= 1e-4 && a < 1e15) {
		s = strconv.FormatFloat(v, 'f', -1, 64)
	} else {
		s = strconv.FormatFloat(v, 'E', -1, 64)
	}
	if strings.Contains(s, ".") {
		return s
	}
	if i := strings.IndexByte(s, 'E'); i >= 0 {
		return s[:i] + ".0" + s[i:]
	}
	return s + ".0"
}
