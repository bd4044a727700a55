package types

import (
	"errors"
	"testing"
)

func TestPixelKind_Validate(t *testing.T) {
	tests := []struct {
		kind    PixelKind
		wantErr bool
	}{
		{PixelInt16, false},
		{PixelFloat32, false},
		{8, true},
		{32, true},
		{-64, true},
		{0, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := tt.kind.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedPixelKind) {
					t.Errorf("Validate() = %v, want ErrUnsupportedPixelKind", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestPixelKind_BytesPerPixel(t *testing.T) {
	if got := PixelInt16.BytesPerPixel(); got != 2 {
		t.Errorf("int16 BytesPerPixel = %d, want 2", got)
	}
	if got := PixelFloat32.BytesPerPixel(); got != 4 {
		t.Errorf("float32 BytesPerPixel = %d, want 4", got)
	}
}

func TestInt16Pixels_Decode(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out := DecodeInt16(Int16Pixels(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestInt16Pixels_LittleEndian(t *testing.T) {
	b := Int16Pixels([]int16{0x0102})
	if b[0] != 0x02 || b[1] != 0x01 {
		t.Errorf("bytes = %v, want little-endian [2 1]", b)
	}
}

func TestFloat32Pixels_Decode(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 1e30}
	out := DecodeFloat32(Float32Pixels(in))
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestFrameHeader_Validate(t *testing.T) {
	h := NewFrameHeader("img", 4, 2, PixelInt16)
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if got := h.FrameBytes(); got != 16 {
		t.Errorf("FrameBytes = %d, want 16", got)
	}

	h.Width = 0
	if err := h.Validate(); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("zero width: Validate() = %v, want ErrInvalidDimensions", err)
	}

	h = NewFrameHeader("img", 4, 2, 64)
	if err := h.Validate(); !errors.Is(err, ErrUnsupportedPixelKind) {
		t.Errorf("bitpix 64: Validate() = %v, want ErrUnsupportedPixelKind", err)
	}
}
