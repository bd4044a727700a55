package archive

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/pithecene-io/imagestream/lode"
)

// Read errors.
var (
	// ErrDigestMismatch is returned when a loaded image does not match its
	// manifest digest.
	ErrDigestMismatch = errors.New("archived image digest mismatch")
	// ErrFrameNotFound is returned when no frame row matches a frame ID.
	ErrFrameNotFound = errors.New("frame not found in archive")
)

// Load reads the file at path and decompresses it according to its suffix.
func Load(ctx context.Context, files lode.FileStore, path string) ([]byte, error) {
	data, err := files.GetFile(ctx, path)
	if err != nil {
		return nil, err
	}
	out, err := CompressionForPath(path).Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return out, nil
}

// Frames returns the manifests of archived frames, sorted by day and
// frame ID. A non-empty day restricts the scan to that partition. Chunk
// records are not loaded.
func Frames(ctx context.Context, records lode.RecordStore, day string) ([]*Manifest, error) {
	var out []*Manifest
	err := records.ScanRecords(ctx, lode.Partition{lode.KeyDay: day}, func(id string, rows []map[string]any) error {
		for _, row := range rows {
			if row["record_kind"] != RecordKindFrame {
				continue
			}
			if day != "" && row[lode.KeyDay] != day {
				continue
			}
			m := &Manifest{SnapshotID: id}
			if err := fromRow(row, m); err != nil {
				return fmt.Errorf("decode frame row: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *Manifest) int {
		return cmp.Or(cmp.Compare(a.Day, b.Day), cmp.Compare(a.FrameID, b.FrameID))
	})
	return out, nil
}

// FindFrame returns the manifest of frameID with its chunk records. When a
// frame was archived more than once the latest snapshot wins.
func FindFrame(ctx context.Context, records lode.RecordStore, frameID string) (*Manifest, error) {
	if frameID == "" {
		return nil, fmt.Errorf("%w: empty frame id", ErrFrameNotFound)
	}
	var found *Manifest
	err := records.ScanRecords(ctx, lode.Partition{lode.KeyFrameID: frameID}, func(id string, rows []map[string]any) error {
		m, ok, err := frameFromRows(rows, frameID)
		if err != nil {
			return err
		}
		if ok {
			m.SnapshotID = id
			found = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrFrameNotFound, frameID)
	}
	return found, nil
}

// LoadFrame finds frameID and reads its image, verifying the digest.
func LoadFrame(ctx context.Context, files lode.FileStore, records lode.RecordStore, frameID string) (*Manifest, []byte, error) {
	m, err := FindFrame(ctx, records, frameID)
	if err != nil {
		return nil, nil, err
	}
	data, err := files.GetFile(ctx, m.ImagePath)
	if err != nil {
		return nil, nil, err
	}
	fits, err := m.Compression.Decompress(data)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", m.ImagePath, err)
	}
	if got := Digest(fits); got != m.Digest {
		return nil, nil, fmt.Errorf("%w: %s has %s, manifest has %s", ErrDigestMismatch, m.ImagePath, got, m.Digest)
	}
	return m, fits, nil
}
