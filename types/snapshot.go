package types

import "time"

// FrameSnapshot is the state of a completed frame handed to archival.
type FrameSnapshot struct {
	FrameID     string
	Header      FrameHeader
	WCS         *WCSHeader
	Compression *CompressionPrefs
	Records     []ChunkRecord
	// FITS is a copy of the mirrored FITS container.
	FITS []byte
	// Events is the number of events published for the frame, DONE included.
	Events      uint32
	CompletedAt time.Time
}
