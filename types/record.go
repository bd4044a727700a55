package types

import (
	"errors"
	"fmt"
	"time"
)

// RecordKind discriminates which payload variant an Event carries.
// Values match the dtype codes seen by existing display clients.
type RecordKind uint32

// Record kinds.
const (
	KindHeader      RecordKind = 0
	KindData        RecordKind = 1
	KindDone        RecordKind = 2
	KindCompression RecordKind = 3
	KindWCS         RecordKind = 4
)

// String returns the wire name of the kind.
func (k RecordKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindData:
		return "data"
	case KindDone:
		return "done"
	case KindCompression:
		return "compression"
	case KindWCS:
		return "wcs"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// ArrayTag identifies the sample width of a PixelArray.
type ArrayTag string

// Array tags.
const (
	// ArrayU8 is the truncated byte encoding used when a frame sets Compress.
	ArrayU8 ArrayTag = "u8"
	// ArrayI16 carries signed 16-bit samples.
	ArrayI16 ArrayTag = "i16"
	// ArrayF32 carries 32-bit float samples.
	ArrayF32 ArrayTag = "f32"
)

// PixelArray is an encoded pixel array tagged by sample width. Only the
// slice selected by Tag is populated.
type PixelArray struct {
	Tag ArrayTag  `msgpack:"tag" json:"tag"`
	U8  []uint8   `msgpack:"u8,omitempty" json:"u8,omitempty"`
	I16 []int16   `msgpack:"i16,omitempty" json:"i16,omitempty"`
	F32 []float32 `msgpack:"f32,omitempty" json:"f32,omitempty"`
}

// Len returns the number of elements in the selected slice.
func (a *PixelArray) Len() int {
	switch a.Tag {
	case ArrayU8:
		return len(a.U8)
	case ArrayI16:
		return len(a.I16)
	case ArrayF32:
		return len(a.F32)
	default:
		return 0
	}
}

// SubHeader is the placement rectangle of a DATA payload.
type SubHeader struct {
	XO   uint32  `msgpack:"xo" json:"xo"`
	YO   uint32  `msgpack:"yo" json:"yo"`
	X    uint32  `msgpack:"x" json:"x"`
	Y    uint32  `msgpack:"y" json:"y"`
	W    uint32  `msgpack:"w" json:"w"`
	H    uint32  `msgpack:"h" json:"h"`
	LCut float64 `msgpack:"lcut" json:"lcut"`
	HCut float64 `msgpack:"hcut" json:"hcut"`
	// CLen is the number of encoded bytes when Data.Tag is ArrayU8.
	CLen int64 `msgpack:"clen" json:"clen"`
}

// SubImage is the DATA payload.
type SubImage struct {
	SubHeader SubHeader  `msgpack:"sub_header" json:"sub_header"`
	Data      PixelArray `msgpack:"data" json:"data"`
}

// CloseHeader is the DONE payload.
type CloseHeader struct {
	Reserved uint32 `msgpack:"reserved" json:"reserved"`
}

// Event is one published record. Kind selects exactly one non-nil payload.
// CountOut always echoes CountIn; subscribers compare consecutive values
// to detect dropped or reordered messages.
type Event struct {
	SchemaVersion string `msgpack:"schema_version" json:"schema_version"`
	// FrameID identifies the frame session the event belongs to.
	FrameID string `msgpack:"frame_id" json:"frame_id"`
	// Ts is the publish timestamp, RFC 3339 with nanoseconds, UTC.
	Ts      string     `msgpack:"ts" json:"ts"`
	CountIn uint32     `msgpack:"count_in" json:"count_in"`
	Kind    RecordKind `msgpack:"dtype" json:"dtype"`

	Header      *FrameHeader      `msgpack:"header,omitempty" json:"header,omitempty"`
	WCS         *WCSHeader        `msgpack:"wcs,omitempty" json:"wcs,omitempty"`
	Compression *CompressionPrefs `msgpack:"compression,omitempty" json:"compression,omitempty"`
	Data        *SubImage         `msgpack:"sub_image,omitempty" json:"sub_image,omitempty"`
	Close       *CloseHeader      `msgpack:"close,omitempty" json:"close,omitempty"`

	CountOut uint32 `msgpack:"count_out" json:"count_out"`
}

// ErrMalformedEvent is returned by Event.Validate.
var ErrMalformedEvent = errors.New("malformed event")

// Validate checks that the discriminator matches the populated payload and
// that the count echo is consistent.
func (e *Event) Validate() error {
	populated := 0
	for _, set := range []bool{e.Header != nil, e.WCS != nil, e.Compression != nil, e.Data != nil, e.Close != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("%w: %d payloads populated", ErrMalformedEvent, populated)
	}

	var ok bool
	switch e.Kind {
	case KindHeader:
		ok = e.Header != nil
	case KindWCS:
		ok = e.WCS != nil
	case KindCompression:
		ok = e.Compression != nil
	case KindData:
		ok = e.Data != nil
	case KindDone:
		ok = e.Close != nil
	}
	if !ok {
		return fmt.Errorf("%w: payload does not match dtype %s", ErrMalformedEvent, e.Kind)
	}
	if e.CountIn != e.CountOut {
		return fmt.Errorf("%w: count_in %d != count_out %d", ErrMalformedEvent, e.CountIn, e.CountOut)
	}
	return nil
}

// Timestamp formats t the way Event.Ts expects.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NewEvent builds an event of the given kind with both count fields set.
// The caller attaches the payload.
func NewEvent(frameID string, kind RecordKind, count uint32, now time.Time) *Event {
	return &Event{
		SchemaVersion: SchemaVersion,
		FrameID:       frameID,
		Ts:            Timestamp(now),
		CountIn:       count,
		Kind:          kind,
		CountOut:      count,
	}
}
