// Package archive persists completed frames to a lode store.
//
// The FITS container, optionally compressed, is a sidecar file:
//
//	frames/day=2026-02-07/frame_id=<id>/image.fits.zst
//
// The frame's manifest and chunk directory are rows in the imagestream
// dataset, committed as one snapshot under the same day and frame_id
// partition. The image is written before the rows, so every frame row
// refers to a complete image.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/imagestream/lode"
	"github.com/pithecene-io/imagestream/types"
)

// ErrEmptyFrame is returned for snapshots without a FITS container.
var ErrEmptyFrame = errors.New("frame snapshot has no FITS data")

// Result describes a written frame.
type Result struct {
	ImagePath  string
	SnapshotID string
	Manifest   Manifest
}

// Writer writes frame snapshots.
type Writer struct {
	files       lode.FileStore
	records     lode.RecordStore
	compression Compression
}

// NewWriter creates a writer storing images through files and frame rows
// through records.
func NewWriter(files lode.FileStore, records lode.RecordStore, compression Compression) *Writer {
	if compression == "" {
		compression = CompressionNone
	}
	return &Writer{files: files, records: records, compression: compression}
}

// Compression returns the configured file compression.
func (w *Writer) Compression() Compression {
	return w.compression
}

// Write persists snap and returns where it landed.
func (w *Writer) Write(ctx context.Context, snap types.FrameSnapshot) (*Result, error) {
	if len(snap.FITS) == 0 {
		return nil, fmt.Errorf("archive frame %s: %w", snap.FrameID, ErrEmptyFrame)
	}
	completed := snap.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	file := ImageFile + w.compression.Extension()
	imagePath, err := lode.FramePath(completed, snap.FrameID, file)
	if err != nil {
		return nil, err
	}
	stored, err := w.compression.Compress(snap.FITS)
	if err != nil {
		return nil, fmt.Errorf("archive frame %s: %w", snap.FrameID, err)
	}

	m := Manifest{
		RecordKind:    RecordKindFrame,
		SchemaVersion: types.SchemaVersion,
		FrameID:       snap.FrameID,
		Day:           completed.UTC().Format(time.DateOnly),
		CompletedAt:   types.Timestamp(completed),
		Header:        snap.Header,
		WCS:           snap.WCS,
		Prefs:         snap.Compression,
		Chunks:        len(snap.Records),
		Events:        snap.Events,
		ImagePath:     imagePath,
		Compression:   w.compression,
		FITSBytes:     int64(len(snap.FITS)),
		StoredBytes:   int64(len(stored)),
		Digest:        Digest(snap.FITS),
		Records:       snap.Records,
	}
	rows, err := m.rows()
	if err != nil {
		return nil, fmt.Errorf("archive frame %s: %w", snap.FrameID, err)
	}

	if err := w.files.PutFile(ctx, imagePath, stored); err != nil {
		return nil, err
	}
	id, err := w.records.WriteRecords(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("archive frame %s: %w", snap.FrameID, err)
	}
	m.SnapshotID = id
	return &Result{ImagePath: imagePath, SnapshotID: id, Manifest: m}, nil
}
