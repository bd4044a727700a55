package lode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// Backend names.
const (
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Config selects and configures a store backend.
type Config struct {
	// Backend is fs, memory or s3.
	Backend string
	// Path is the root directory for fs, or "bucket/prefix" for s3.
	Path string
	// S3 holds the remaining s3 options. Bucket and Prefix are taken from
	// Path when empty.
	S3 S3Config
}

// NewFactory returns the lode store factory for cfg.
func NewFactory(cfg Config) (lode.StoreFactory, error) {
	switch cfg.Backend {
	case BackendFS, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("fs backend requires a path")
		}
		return lode.NewFSFactory(cfg.Path), nil
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	case BackendS3:
		s3cfg := cfg.S3
		if s3cfg.Bucket == "" {
			s3cfg.Bucket, s3cfg.Prefix = ParseS3Path(cfg.Path)
		}
		return newS3Factory(s3cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want fs, memory or s3)", cfg.Backend)
	}
}

// Open creates the store for cfg.
func Open(cfg Config) (lode.Store, error) {
	factory, err := NewFactory(cfg)
	if err != nil {
		return nil, err
	}
	store, err := factory()
	if err != nil {
		return nil, Wrap(err, "open", cfg.Path)
	}
	return store, nil
}

// FileStore reads and writes whole files. Failures are *StorageError.
type FileStore interface {
	PutFile(ctx context.Context, path string, data []byte) error
	GetFile(ctx context.Context, path string) ([]byte, error)
	ListFiles(ctx context.Context, prefix string) ([]string, error)
}

// Files adapts a lode.Store to FileStore.
type Files struct {
	store lode.Store
}

// NewFiles wraps store.
func NewFiles(store lode.Store) *Files {
	return &Files{store: store}
}

// PutFile writes data at path.
func (f *Files) PutFile(ctx context.Context, path string, data []byte) error {
	return Wrap(f.store.Put(ctx, path, bytes.NewReader(data)), "put", path)
}

// GetFile reads the file at path.
func (f *Files) GetFile(ctx context.Context, path string) ([]byte, error) {
	rc, err := f.store.Get(ctx, path)
	if err != nil {
		return nil, Wrap(err, "get", path)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Wrap(err, "get", path)
	}
	return data, nil
}

// ListFiles returns the paths under prefix.
func (f *Files) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	paths, err := f.store.List(ctx, prefix)
	if err != nil {
		return nil, Wrap(err, "list", prefix)
	}
	return paths, nil
}

var _ FileStore = (*Files)(nil)

// FramesPrefix is the root of the frame layout.
const FramesPrefix = "frames"

// FrameDir returns the Hive-partitioned directory of one frame.
// Format: frames/day=<YYYY-MM-DD>/frame_id=<id>
func FrameDir(day time.Time, frameID string) string {
	return path.Join(FramesPrefix, "day="+day.UTC().Format(time.DateOnly), "frame_id="+frameID)
}

// FramePath returns the path of filename inside the frame directory. The
// filename must not contain path separators or "..".
func FramePath(day time.Time, frameID, filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid frame filename %q", filename)
	}
	if frameID == "" || strings.ContainsAny(frameID, `/\`) || strings.Contains(frameID, "..") {
		return "", fmt.Errorf("invalid frame id %q", frameID)
	}
	return path.Join(FrameDir(day, frameID), filename), nil
}
