package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pithecene-io/imagestream/archive"
	"github.com/pithecene-io/imagestream/lode"
)

// Lookup errors.
var (
	// ErrFrameNotFound is returned when no archived frame matches a
	// reference.
	ErrFrameNotFound = archive.ErrFrameNotFound
	// ErrAmbiguousFrame is returned when a frame ID prefix matches more
	// than one frame.
	ErrAmbiguousFrame = errors.New("frame id prefix is ambiguous")
)

// Reader reads archived frames: frame rows from the dataset, images from
// the file store.
type Reader struct {
	files   lode.FileStore
	records lode.RecordStore
}

// New returns a reader over files and records.
func New(files lode.FileStore, records lode.RecordStore) *Reader {
	return &Reader{files: files, records: records}
}

// ListFrames returns archived frames ordered by day, then frame ID.
func (r *Reader) ListFrames(ctx context.Context, opts ListOptions) ([]ListFrameItem, error) {
	frames, err := archive.Frames(ctx, r.records, opts.Day)
	if err != nil {
		return nil, err
	}
	items := []ListFrameItem{}
	for _, m := range frames {
		if opts.Name != "" && m.Header.Name != opts.Name {
			continue
		}
		items = append(items, ListFrameItem{
			FrameID:     m.FrameID,
			Name:        m.Header.Name,
			Day:         m.Day,
			Width:       m.Header.Width,
			Height:      m.Header.Height,
			Bitpix:      int32(m.Header.Bitpix),
			Chunks:      m.Chunks,
			Compression: string(m.Compression),
			StoredBytes: m.StoredBytes,
			CompletedAt: m.CompletedAt,
		})
		if opts.Limit > 0 && len(items) == opts.Limit {
			break
		}
	}
	return items, nil
}

// Resolve maps a frame reference to a frame ID. ref is a full frame ID or
// a prefix matching exactly one frame.
func (r *Reader) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrFrameNotFound)
	}
	frames, err := archive.Frames(ctx, r.records, "")
	if err != nil {
		return "", err
	}
	var matches []string
	for _, m := range frames {
		if m.FrameID == ref {
			return ref, nil
		}
		if strings.HasPrefix(m.FrameID, ref) && !slices.Contains(matches, m.FrameID) {
			matches = append(matches, m.FrameID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrFrameNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %s", ErrAmbiguousFrame, ref, strings.Join(matches, ", "))
	}
}

// InspectFrame loads an archived frame, verifies its digest and
// summarizes its FITS container.
func (r *Reader) InspectFrame(ctx context.Context, ref string) (*InspectFrameResponse, error) {
	id, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	m, fits, err := archive.LoadFrame(ctx, r.files, r.records, id)
	if err != nil {
		return nil, err
	}
	info, err := InspectFITS(fits)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", m.ImagePath, err)
	}
	return &InspectFrameResponse{
		FrameID:     m.FrameID,
		Name:        m.Header.Name,
		Day:         m.Day,
		SnapshotID:  m.SnapshotID,
		ImagePath:   m.ImagePath,
		Compression: string(m.Compression),
		Digest:      m.Digest,
		Events:      m.Events,
		Chunks:      len(m.Records),
		WCS:         m.WCS,
		FITS:        info,
	}, nil
}

// InspectFile summarizes a FITS file on local disk, decompressing it
// according to its suffix.
func InspectFile(path string) (*InspectFrameResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := archive.CompressionForPath(path)
	fits, err := c.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	info, err := InspectFITS(fits)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	return &InspectFrameResponse{
		ImagePath:   path,
		Compression: string(c),
		Digest:      archive.Digest(fits),
		FITS:        info,
	}, nil
}
