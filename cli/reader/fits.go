package reader

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/astrogo/fitsio"
)

// ErrNotImage is returned when the primary HDU holds no image.
var ErrNotImage = errors.New("primary HDU is not an image")

// InspectFITS decodes a FITS container and summarizes its primary image.
func InspectFITS(data []byte) (*FITSInfo, error) {
	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, ErrNotImage
	}
	hdr := img.Header()

	info := &FITSInfo{Bitpix: hdr.Bitpix(), Axes: hdr.Axes()}
	for _, name := range hdr.Keys() {
		card := hdr.Get(name)
		if card == nil {
			continue
		}
		info.Cards = append(info.Cards, Card{Name: name, Value: fmt.Sprint(card.Value)})
	}

	n := 1
	for _, a := range info.Axes {
		n *= a
	}
	if len(info.Axes) == 0 || n == 0 {
		return info, nil
	}

	bscale := cardFloat(hdr, "BSCALE", 1)
	bzero := cardFloat(hdr, "BZERO", 0)
	var raw []float64
	switch info.Bitpix {
	case 16:
		pix := make([]int16, n)
		if err := img.Read(&pix); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		raw = make([]float64, n)
		for i, v := range pix {
			raw[i] = float64(v)
		}
	case -32:
		pix := make([]float32, n)
		if err := img.Read(&pix); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		raw = make([]float64, n)
		for i, v := range pix {
			raw[i] = float64(v)
		}
	default:
		return info, nil
	}

	info.Min, info.Max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range raw {
		v = v*bscale + bzero
		info.Min = min(info.Min, v)
		info.Max = max(info.Max, v)
		sum += v
	}
	info.Mean = sum / float64(len(raw))
	return info, nil
}

func cardFloat(hdr *fitsio.Header, name string, def float64) float64 {
	card := hdr.Get(name)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
