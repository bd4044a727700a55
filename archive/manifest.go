package archive

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/pithecene-io/imagestream/lode"
	"github.com/pithecene-io/imagestream/types"
)

// ImageFile is the FITS file name inside a frame directory.
const ImageFile = "image.fits"

// Record kinds in the frame dataset.
const (
	RecordKindFrame = "frame"
	RecordKindChunk = "chunk"
)

// DigestPrefix tags the digest algorithm.
const DigestPrefix = "blake3:"

// Digest returns the tagged BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// Manifest describes one archived frame. It is stored as the frame's
// record_kind=frame row; its chunk directory is stored as one
// record_kind=chunk row per chunk in the same snapshot.
type Manifest struct {
	RecordKind    string                  `json:"record_kind"`
	SchemaVersion string                  `json:"schema_version"`
	FrameID       string                  `json:"frame_id"`
	Day           string                  `json:"day"`
	CompletedAt   string                  `json:"completed_at"`
	Header        types.FrameHeader       `json:"header"`
	WCS           *types.WCSHeader        `json:"wcs,omitempty"`
	Prefs         *types.CompressionPrefs `json:"compression_prefs,omitempty"`
	Chunks        int                     `json:"chunks"`
	Events        uint32                  `json:"events"`
	// ImagePath is the FITS sidecar in the file store.
	ImagePath   string      `json:"image_path"`
	Compression Compression `json:"compression"`
	FITSBytes   int64       `json:"fits_bytes"`
	StoredBytes int64       `json:"stored_bytes"`
	// Digest covers the uncompressed FITS container.
	Digest string `json:"digest"`

	// Records is filled from the chunk rows when a single frame is loaded.
	Records []types.ChunkRecord `json:"-"`
	// SnapshotID is the dataset snapshot holding the frame's rows.
	SnapshotID string `json:"-"`
}

// rows returns the frame row followed by one row per chunk record.
func (m *Manifest) rows() ([]map[string]any, error) {
	frame, err := toRow(m)
	if err != nil {
		return nil, fmt.Errorf("encode frame row: %w", err)
	}
	rows := make([]map[string]any, 0, 1+len(m.Records))
	rows = append(rows, frame)
	for _, r := range m.Records {
		rows = append(rows, map[string]any{
			"record_kind":   RecordKindChunk,
			lode.KeyDay:     m.Day,
			lode.KeyFrameID: m.FrameID,
			"seq":           r.Seq,
			"xo":            r.XO,
			"yo":            r.YO,
			"x":             r.X,
			"y":             r.Y,
			"w":             r.Width,
			"h":             r.Height,
		})
	}
	return rows, nil
}

// toRow converts v to the map form the Hive layout partitions on.
func toRow(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// fromRow decodes a dataset row into v.
func fromRow(row map[string]any, v any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// frameFromRows assembles the manifest in one snapshot's rows. ok is false
// when the snapshot holds no frame row for frameID.
func frameFromRows(rows []map[string]any, frameID string) (m *Manifest, ok bool, err error) {
	var chunks []types.ChunkRecord
	for _, row := range rows {
		if frameID != "" && row[lode.KeyFrameID] != frameID {
			continue
		}
		switch row["record_kind"] {
		case RecordKindFrame:
			m = &Manifest{}
			if err := fromRow(row, m); err != nil {
				return nil, false, fmt.Errorf("decode frame row: %w", err)
			}
		case RecordKindChunk:
			var r types.ChunkRecord
			if err := fromRow(row, &r); err != nil {
				return nil, false, fmt.Errorf("decode chunk row: %w", err)
			}
			chunks = append(chunks, r)
		}
	}
	if m == nil {
		return nil, false, nil
	}
	m.Records = chunks
	return m, true, nil
}
