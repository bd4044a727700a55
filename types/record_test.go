package types

import (
	"errors"
	"testing"
	"time"
)

func TestEvent_Validate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	hdr := NewFrameHeader("img", 4, 2, PixelInt16)
	good := NewEvent("frame-1", KindHeader, 1, now)
	good.Header = &hdr
	if err := good.Validate(); err != nil {
		t.Fatalf("valid header event: %v", err)
	}

	tests := []struct {
		name  string
		event func() *Event
	}{
		{"no payload", func() *Event {
			return NewEvent("f", KindDone, 3, now)
		}},
		{"two payloads", func() *Event {
			e := NewEvent("f", KindDone, 3, now)
			e.Close = &CloseHeader{}
			e.WCS = &WCSHeader{}
			return e
		}},
		{"payload mismatch", func() *Event {
			e := NewEvent("f", KindData, 3, now)
			e.Close = &CloseHeader{}
			return e
		}},
		{"count echo mismatch", func() *Event {
			e := NewEvent("f", KindDone, 3, now)
			e.Close = &CloseHeader{}
			e.CountOut = 4
			return e
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event().Validate(); !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Validate() = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestNewEvent_Timestamp(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 5, time.FixedZone("X", 3600))
	e := NewEvent("f", KindHeader, 1, now)
	if e.Ts != "2026-10-14T11:00:00.000000005Z" {
		t.Errorf("Ts = %q", e.Ts)
	}
	if e.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %q", e.SchemaVersion)
	}
}

func TestTileFromArray(t *testing.T) {
	tile, ok := TileFromArray(PixelArray{Tag: ArrayI16, I16: []int16{1, 2, 3, 4}}, 2, 2)
	if !ok || tile.Kind != PixelInt16 || tile.Len() != 4 {
		t.Errorf("i16 tile = %+v, ok=%v", tile, ok)
	}
	if _, ok := TileFromArray(PixelArray{Tag: ArrayU8, U8: []uint8{1, 2, 3, 4}}, 2, 2); ok {
		t.Error("u8 arrays must not convert to tiles")
	}
	if _, ok := TileFromArray(PixelArray{Tag: ArrayF32, F32: []float32{1}}, 2, 2); ok {
		t.Error("short arrays must not convert to tiles")
	}
}
