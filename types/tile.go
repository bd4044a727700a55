package types

// Tile is a rectangular block of samples in row-major order. Exactly one of
// I16 or F32 is populated, selected by Kind.
type Tile struct {
	Kind   PixelKind `json:"kind"`
	Width  uint32    `json:"width"`
	Height uint32    `json:"height"`
	I16    []int16   `json:"i16,omitempty"`
	F32    []float32 `json:"f32,omitempty"`
}

// Len returns Width*Height.
func (t *Tile) Len() int {
	return int(t.Width) * int(t.Height)
}

// Array returns the tile as a PixelArray in its native sample width.
func (t *Tile) Array() PixelArray {
	if t.Kind == PixelFloat32 {
		return PixelArray{Tag: ArrayF32, F32: t.F32}
	}
	return PixelArray{Tag: ArrayI16, I16: t.I16}
}

// TileFromArray builds a Tile of dimensions w x h from a native-width
// array. ok is false for ArrayU8 or when the length does not match.
func TileFromArray(a PixelArray, w, h uint32) (Tile, bool) {
	n := int(w) * int(h)
	switch a.Tag {
	case ArrayI16:
		if len(a.I16) != n {
			return Tile{}, false
		}
		return Tile{Kind: PixelInt16, Width: w, Height: h, I16: a.I16}, true
	case ArrayF32:
		if len(a.F32) != n {
			return Tile{}, false
		}
		return Tile{Kind: PixelFloat32, Width: w, Height: h, F32: a.F32}, true
	default:
		return Tile{}, false
	}
}
