package agent

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pithecene-io/imagestream/types"
)

// CountField is the request field carrying the sequence number.
const CountField = "count"

// Retrieve re-encodes a previously delivered chunk as a DATA event read
// back from the frame buffer. The rectangle is read at the recorded
// placement; the sub-offset is carried in the response but not
// reapplied. The array always uses the frame's native pixel kind.
func (a *Agent) Retrieve(ctx context.Context, seq uint32) (*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.dir.Get(seq)
	if !ok || a.buf == nil {
		a.metrics.IncRetrievalMissed()
		return nil, &ChunkNotFoundError{Count: seq, Size: a.dir.Len()}
	}

	tile, err := a.buf.Read(rec.X, rec.Y, rec.Width, rec.Height)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunk %d: %w", seq, err)
	}

	ev := types.NewEvent(a.frameID, types.KindData, seq, a.now())
	ev.Data = &types.SubImage{
		SubHeader: types.SubHeader{
			XO: rec.XO, YO: rec.YO,
			X: rec.X, Y: rec.Y,
			W: rec.Width, H: rec.Height,
		},
		Data: tile.Array(),
	}
	a.metrics.IncRetrievalServed()
	return ev, nil
}

// Request is the request/response entry point. It parses the count field
// from args and retrieves that chunk.
func (a *Agent) Request(ctx context.Context, args map[string]any) (*types.Event, error) {
	seq, err := ParseCount(args)
	if err != nil {
		a.metrics.IncBadRequest()
		return nil, err
	}
	return a.Retrieve(ctx, seq)
}

// ParseCount extracts the sequence number from a request. Integers of any
// width, integral floats and decimal strings are accepted.
func ParseCount(args map[string]any) (uint32, error) {
	v, ok := args[CountField]
	if !ok || v == nil {
		return 0, ErrMissingCount
	}

	var n uint64
	switch c := v.(type) {
	case int:
		if c < 0 {
			return 0, invalidCount(v)
		}
		n = uint64(c)
	case int8:
		if c < 0 {
			return 0, invalidCount(v)
		}
		n = uint64(c)
	case int16:
		if c < 0 {
			return 0, invalidCount(v)
		}
		n = uint64(c)
	case int32:
		if c < 0 {
			return 0, invalidCount(v)
		}
		n = uint64(c)
	case int64:
		if c < 0 {
			return 0, invalidCount(v)
		}
		n = uint64(c)
	case uint:
		n = uint64(c)
	case uint8:
		n = uint64(c)
	case uint16:
		n = uint64(c)
	case uint32:
		n = uint64(c)
	case uint64:
		n = c
	case float32:
		return parseFloatCount(float64(c), v)
	case float64:
		return parseFloatCount(c, v)
	case string:
		p, err := strconv.ParseUint(strings.TrimSpace(c), 10, 32)
		if err != nil {
			return 0, invalidCount(v)
		}
		n = p
	default:
		return 0, invalidCount(v)
	}
	if n > math.MaxUint32 {
		return 0, invalidCount(v)
	}
	return uint32(n), nil
}

func parseFloatCount(f float64, v any) (uint32, error) {
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, invalidCount(v)
	}
	return uint32(f), nil
}

func invalidCount(v any) error {
	return fmt.Errorf("%w: %v (%T)", ErrInvalidCount, v, v)
}
