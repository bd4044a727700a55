package lode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// DatasetID names the frame record dataset.
const DatasetID = "imagestream"

// Partition keys of the frame record dataset. Every record carries both.
const (
	KeyDay     = "day"
	KeyFrameID = "frame_id"
)

// Partition selects records by partition value. Empty values match all.
type Partition map[string]string

// RecordStore commits and scans structured frame records.
type RecordStore interface {
	// WriteRecords commits records as one snapshot and returns its ID.
	WriteRecords(ctx context.Context, records []map[string]any) (string, error)
	// ScanRecords calls fn with the ID and records of every snapshot
	// matching p, oldest first.
	ScanRecords(ctx context.Context, p Partition, fn func(snapshotID string, records []map[string]any) error) error
}

// Records is a RecordStore backed by a lode dataset with a day/frame_id
// Hive layout and JSON lines.
type Records struct {
	ds lode.Dataset
}

// NewRecords opens the frame dataset on store. Files and Records opened on
// the same store share it.
func NewRecords(store lode.Store) (*Records, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(DatasetID),
		func() (lode.Store, error) { return store, nil },
		lode.WithHiveLayout(KeyDay, KeyFrameID),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, err
	}
	return &Records{ds: ds}, nil
}

// WriteRecords commits records as one snapshot.
func (r *Records) WriteRecords(ctx context.Context, records []map[string]any) (string, error) {
	if len(records) == 0 {
		return "", errors.New("no records to write")
	}
	data := make([]any, len(records))
	for i, rec := range records {
		data[i] = rec
	}
	snap, err := r.ds.Write(ctx, data, lode.Metadata{})
	if err != nil {
		return "", Wrap(err, "write", DatasetID)
	}
	return string(snap.ID), nil
}

// ScanRecords reads every snapshot whose files lie in partition p. The
// partition check only prunes snapshots; callers filter on record fields.
func (r *Records) ScanRecords(ctx context.Context, p Partition, fn func(snapshotID string, records []map[string]any) error) error {
	snapshots, err := r.ds.Snapshots(ctx)
	if errors.Is(err, lode.ErrNoSnapshots) || errors.Is(err, lode.ErrNotFound) {
		return nil
	}
	if err != nil {
		return Wrap(err, "snapshots", DatasetID)
	}
	for _, snap := range snapshots {
		if !snapshotMatches(snap, p) {
			continue
		}
		data, err := r.ds.Read(ctx, snap.ID)
		if err != nil {
			return Wrap(err, "read", fmt.Sprintf("%s/%s", DatasetID, snap.ID))
		}
		records := make([]map[string]any, 0, len(data))
		for _, item := range data {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		if err := fn(string(snap.ID), records); err != nil {
			return err
		}
	}
	return nil
}

func snapshotMatches(snap *lode.DatasetSnapshot, p Partition) bool {
	for key, value := range p {
		if value == "" {
			continue
		}
		found := false
		for _, f := range snap.Manifest.Files {
			if hasPartitionSegment(f.Path, key, value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// hasPartitionSegment reports whether path has the exact key=value
// segment, so frame_id=f1 does not match frame_id=f10.
func hasPartitionSegment(path, key, value string) bool {
	segment := key + "=" + url.PathEscape(value)
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

var _ RecordStore = (*Records)(nil)
