package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// A frame on the retrieval connection is a 4-byte big-endian payload
// length followed by the payload.
const (
	LengthPrefixSize = 4
	MaxFrameSize     = 16 << 20
	MaxPayloadSize   = MaxFrameSize - LengthPrefixSize
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial is a frame cut off mid-prefix or mid-payload.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge is a length prefix above the decoder limit.
	FrameErrorTooLarge
	// FrameErrorDecode is a complete frame whose payload the codec rejects.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial frame"
	case FrameErrorTooLarge:
		return "oversized frame"
	case FrameErrorDecode:
		return "undecodable frame"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError is a framing or payload decoding failure.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether the connection is out of sync after the error.
// A decode error leaves the reader at the next frame boundary.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.IsFatal()
}

func tooLarge(n int, limit uint32) *FrameError {
	return &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("payload size %d exceeds maximum %d", n, limit)}
}

// FrameDecoder reads length-prefixed frames.
type FrameDecoder struct {
	r     io.Reader
	limit uint32
}

// NewFrameDecoder returns a decoder accepting payloads up to
// MaxPayloadSize.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r, limit: MaxPayloadSize}
}

// WithLimit lowers the largest accepted payload to n bytes. Values outside
// (0, MaxPayloadSize) are ignored.
func (d *FrameDecoder) WithLimit(n int) *FrameDecoder {
	if n > 0 && n < MaxPayloadSize {
		d.limit = uint32(n)
	}
	return d
}

// ReadFrame returns the next payload. It returns io.EOF only when the
// stream ends on a frame boundary.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	switch _, err := io.ReadFull(d.r, prefix[:]); {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil:
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "read length prefix", Err: err}
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > d.limit {
		return nil, tooLarge(int(n), d.limit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: fmt.Sprintf("read %d-byte payload", n), Err: err}
	}
	return payload, nil
}

// WriteFrame writes payload behind its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return tooLarge(len(payload), MaxPayloadSize)
	}
	buf := binary.BigEndian.AppendUint32(make([]byte, 0, LengthPrefixSize+len(payload)), uint32(len(payload)))
	_, err := w.Write(append(buf, payload...))
	return err
}

// ReadValue reads one frame and decodes it into v.
func ReadValue(d *FrameDecoder, c Codec, v any) error {
	payload, err := d.ReadFrame()
	if err != nil {
		return err
	}
	if err := c.Unmarshal(payload, v); err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "decode " + c.Name() + " payload", Err: err}
	}
	return nil
}

// WriteValue encodes v and writes it as one frame.
func WriteValue(w io.Writer, c Codec, v any) error {
	payload, err := c.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", c.Name(), err)
	}
	return WriteFrame(w, payload)
}
