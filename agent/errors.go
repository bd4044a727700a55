package agent

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/imagestream/framebuf"
	"github.com/pithecene-io/imagestream/types"
)

// Sentinel errors. Use errors.Is for classification.
var (
	// ErrSequencing indicates an operation that requires an active frame
	// session was called while idle.
	ErrSequencing = errors.New("no active frame session")

	// ErrChunkNotFound indicates retrieval of an unknown sequence number.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrTransport indicates the publish channel rejected an event.
	ErrTransport = errors.New("transport failure")

	// ErrMissingCount indicates a retrieval request without a count field.
	ErrMissingCount = errors.New("missing count field")

	// ErrInvalidCount indicates a count field that is not a sequence number.
	ErrInvalidCount = errors.New("invalid count field")

	// ErrInvalidCompressionPrefs indicates prefs that cannot be forwarded.
	ErrInvalidCompressionPrefs = errors.New("invalid compression preferences")
)

// Re-exported validation errors so callers need only this package.
var (
	ErrUnsupportedPixelKind = types.ErrUnsupportedPixelKind
	ErrOutOfBounds          = framebuf.ErrOutOfBounds
	ErrPixelLength          = framebuf.ErrPixelLength
)

// ChunkNotFoundError reports a retrieval miss with the requested sequence
// number and the directory size at the time of the request.
type ChunkNotFoundError struct {
	Count uint32
	Size  int
}

func (e *ChunkNotFoundError) Error() string {
	return fmt.Sprintf("failed to find image chunk %d #chunks=%d", e.Count, e.Size)
}

// Is reports whether target is ErrChunkNotFound.
func (e *ChunkNotFoundError) Is(target error) bool {
	return target == ErrChunkNotFound
}

// TransportError wraps a publish failure with the event that failed.
type TransportError struct {
	Kind types.RecordKind
	Seq  uint32
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish %s seq %d: %v", e.Kind, e.Seq, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func sequencingError(op string) error {
	return fmt.Errorf("%s: %w", op, ErrSequencing)
}
