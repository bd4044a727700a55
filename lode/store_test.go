package lode

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestFramePath(t *testing.T) {
	day := time.Date(2026, 2, 7, 23, 30, 0, 0, time.UTC)
	got, err := FramePath(day, "abc", "image.fits.zst")
	if err != nil {
		t.Fatalf("FramePath failed: %v", err)
	}
	if want := "frames/day=2026-02-07/frame_id=abc/image.fits.zst"; got != want {
		t.Errorf("FramePath = %q, want %q", got, want)
	}

	for _, bad := range []struct{ id, name string }{
		{"abc", "../x"},
		{"abc", "a/b"},
		{"abc", ""},
		{"a/b", "image.fits"},
		{"..", "image.fits"},
	} {
		if _, err := FramePath(day, bad.id, bad.name); err == nil {
			t.Errorf("FramePath(%q, %q) succeeded", bad.id, bad.name)
		}
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"koa-frames", "koa-frames", ""},
		{"koa-frames/gpi", "koa-frames", "gpi"},
		{"koa-frames/gpi/raw", "koa-frames", "gpi/raw"},
		{"s3://koa-frames/nirc2/", "koa-frames", "nirc2"},
		{"/koa-frames", "koa-frames", ""},
	}
	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.in)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q, want %q, %q", tt.in, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

func TestNewFactory_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"fs without path", Config{Backend: BackendFS}},
		{"s3 without bucket", Config{Backend: BackendS3}},
		{"unknown", Config{Backend: "tape", Path: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactory(tt.cfg); err == nil {
				t.Error("NewFactory succeeded")
			}
		})
	}
}

func TestFiles_RoundTrip(t *testing.T) {
	for _, cfg := range []Config{
		{Backend: BackendMemory},
		{Backend: BackendFS, Path: t.TempDir()},
	} {
		t.Run(cfg.Backend, func(t *testing.T) {
			store, err := Open(cfg)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			files := NewFiles(store)
			ctx := t.Context()

			p, _ := FramePath(time.Now(), "f1", "image.fits")
			if err := files.PutFile(ctx, p, []byte(`{"ok":true}`)); err != nil {
				t.Fatalf("PutFile failed: %v", err)
			}
			got, err := files.GetFile(ctx, p)
			if err != nil {
				t.Fatalf("GetFile failed: %v", err)
			}
			if string(got) != `{"ok":true}` {
				t.Errorf("GetFile = %q", got)
			}
			paths, err := files.ListFiles(ctx, FramesPrefix)
			if err != nil {
				t.Fatalf("ListFiles failed: %v", err)
			}
			if !slices.ContainsFunc(paths, func(s string) bool { return strings.HasSuffix(s, "frame_id=f1/image.fits") }) {
				t.Errorf("ListFiles = %v, want to contain %s", paths, p)
			}
		})
	}
}

func TestFiles_GetMissing(t *testing.T) {
	store, _ := Open(Config{Backend: BackendMemory})
	_, err := NewFiles(store).GetFile(t.Context(), "frames/none")
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "get" {
		t.Errorf("GetFile err = %v, want StorageError op get", err)
	}
}
