// Package reader provides the read side of the frame archive for CLI
// commands. It never writes to the store.
package reader

import "github.com/pithecene-io/imagestream/types"

// ListFrameItem is one row of `imagestream list`.
type ListFrameItem struct {
	FrameID     string `json:"frame_id"`
	Name        string `json:"name"`
	Day         string `json:"day"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	Bitpix      int32  `json:"bitpix"`
	Chunks      int    `json:"chunks"`
	Compression string `json:"compression"`
	StoredBytes int64  `json:"stored_bytes"`
	CompletedAt string `json:"completed_at"`
}

// InspectFrameResponse is the payload of `imagestream inspect`.
type InspectFrameResponse struct {
	FrameID     string           `json:"frame_id"`
	Name        string           `json:"name"`
	Day         string           `json:"day"`
	SnapshotID  string           `json:"snapshot_id,omitempty"`
	ImagePath   string           `json:"image_path"`
	Compression string           `json:"compression"`
	Digest      string           `json:"digest"`
	Events      uint32           `json:"events"`
	Chunks      int              `json:"chunks"`
	WCS         *types.WCSHeader `json:"wcs,omitempty"`
	FITS        *FITSInfo        `json:"fits"`
}

// FITSInfo summarizes the primary HDU of a FITS container.
type FITSInfo struct {
	Bitpix int    `json:"bitpix"`
	Axes   []int  `json:"axes"`
	Cards  []Card `json:"cards"`
	// Pixel statistics in physical units (raw*BSCALE+BZERO).
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Card is one header keyword.
type Card struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ListOptions filters ListFrames.
type ListOptions struct {
	// Day restricts results to one YYYY-MM-DD partition.
	Day string
	// Name restricts results to one image name.
	Name  string
	Limit int
}
