// Package adapter notifies downstream systems that a frame has been
// archived.
//
// Adapters run after the archive write succeeds; a failed notification
// never undoes the archive.
package adapter

import (
	"context"
	"errors"
)

// EventTypeFrameArchived is the EventType of every FrameArchivedEvent.
const EventTypeFrameArchived = "frame_archived"

// FrameArchivedEvent is the payload published when a frame is archived.
type FrameArchivedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "frame_archived"
	FrameID         string `json:"frame_id"`
	Name            string `json:"name"`
	Day             string `json:"day"`
	Width           uint32 `json:"width"`
	Height          uint32 `json:"height"`
	Bitpix          int32  `json:"bitpix"`
	// StoragePath is the archived FITS file.
	StoragePath string `json:"storage_path"`
	// SnapshotID is the dataset snapshot holding the frame and chunk rows.
	SnapshotID string `json:"snapshot_id"`
	// Compression is the archive file compression (none, gzip, zstd, lz4).
	Compression string `json:"compression"`
	Digest      string `json:"digest"`
	FITSBytes   int64  `json:"fits_bytes"`
	StoredBytes int64  `json:"stored_bytes"`
	Chunks      int    `json:"chunks"`
	Events      uint32 `json:"events"`
	Timestamp   string `json:"timestamp"` // RFC 3339
}

// Adapter publishes archive notifications to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, event *FrameArchivedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Multi publishes to every adapter in order and joins their errors.
type Multi []Adapter

// Publish sends event to each adapter. A failing adapter does not stop
// the others.
func (m Multi) Publish(ctx context.Context, event *FrameArchivedEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}

var _ Adapter = Multi(nil)
