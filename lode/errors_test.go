package lode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestWrap_Classify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"wrapped deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), ErrTimeout},
		{"timed out", errors.New("operation timed out"), ErrTimeout},
		{"fs not exist", fs.ErrNotExist, ErrNotFound},
		{"NoSuchKey", errors.New("NoSuchKey: the key does not exist"), ErrNotFound},
		{"fs permission", fs.ErrPermission, ErrPermissionDenied},
		{"EACCES", errors.New("open /tmp/file: EACCES"), ErrPermissionDenied},
		{"AccessDenied", errors.New("AccessDenied: you do not have access"), ErrAccessDenied},
		{"HTTP 403", errors.New("received status 403"), ErrAccessDenied},
		{"ENOSPC", errors.New("write: ENOSPC"), ErrDiskFull},
		{"SlowDown", errors.New("SlowDown: reduce your request rate"), ErrThrottled},
		{"expired token", errors.New("ExpiredToken: the token has expired"), ErrAuth},
		{"refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), ErrNetwork},
		{"unknown", errors.New("something odd"), ErrUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap(tt.err, "put", "frames/x")
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("Wrap(%v) kind = %v, want %v", tt.err, err, tt.wantKind)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Wrap(%v) lost the underlying error", tt.err)
			}
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, "put", "x"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrap_KeepsExisting(t *testing.T) {
	first := Wrap(fs.ErrNotExist, "get", "a")
	second := Wrap(fmt.Errorf("load: %w", first), "put", "b")

	var se *StorageError
	if !errors.As(second, &se) || se.Op != "get" || se.Path != "a" {
		t.Errorf("StorageError = %+v, want op get path a", se)
	}
}

func TestStorageError_Message(t *testing.T) {
	err := &StorageError{Kind: ErrNotFound, Op: "get", Path: "frames/a", Err: errors.New("missing")}
	if got, want := err.Error(), "get frames/a: not found: missing"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	err.Path = ""
	if got, want := err.Error(), "get: not found: missing"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
