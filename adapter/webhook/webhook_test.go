package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/imagestream/adapter"
	"github.com/pithecene-io/imagestream/iox"
)

func archivedEvent() *adapter.FrameArchivedEvent {
	return &adapter.FrameArchivedEvent{
		ContractVersion: "0.1.0",
		EventType:       adapter.EventTypeFrameArchived,
		FrameID:         "5f0c3b0e-8d1a-4c55-9a57-3f1de2a5b7c1",
		Name:            "nirc2",
		Day:             "2026-03-14",
		Width:           1024,
		Height:          1024,
		Bitpix:          16,
		StoragePath:     "frames/day=2026-03-14/frame_id=5f0c3b0e/image.fits.lz4",
		SnapshotID:      "1773476000000000000-7f3a",
		Compression:     "lz4",
		Digest:          "blake3:9a1f",
		Chunks:          64,
		Events:          66,
		Timestamp:       "2026-03-14T08:12:44Z",
	}
}

func newAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { iox.DiscardClose(a) })
	return a
}

func TestPublish_RequestShape(t *testing.T) {
	var (
		got    adapter.FrameArchivedEvent
		header http.Header
		method string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, header = r.Method, r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer obs-night"}})
	ev := archivedEvent()
	if err := a.Publish(t.Context(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
	for k, want := range map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer obs-night",
		HeaderEvent:     adapter.EventTypeFrameArchived,
		HeaderFrame:     ev.FrameID,
		HeaderDigest:    ev.Digest,
	} {
		if v := header.Get(k); v != want {
			t.Errorf("header %s = %q, want %q", k, v, want)
		}
	}
	if got != *ev {
		t.Errorf("body = %+v, want %+v", got, *ev)
	}
}

func TestPublish_NoDigestHeader(t *testing.T) {
	var sawDigest atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header[HeaderDigest]
		sawDigest.Store(ok)
	}))
	defer ts.Close()

	ev := archivedEvent()
	ev.Digest = ""
	if err := newAdapter(t, Config{URL: ts.URL}).Publish(t.Context(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if sawDigest.Load() {
		t.Errorf("%s sent for an event without a digest", HeaderDigest)
	}
}

func TestPublish_Status(t *testing.T) {
	tests := []struct {
		name         string
		codes        []int // one per attempt; the last repeats
		retries      int
		wantAttempts int32
		wantCode     int
	}{
		{"ok", []int{200}, 3, 1, 0},
		{"no content", []int{204}, 3, 1, 0},
		{"recovers after 5xx", []int{500, 503, 200}, 3, 3, 0},
		{"throttled then ok", []int{429, 200}, 3, 2, 0},
		{"5xx exhausts retries", []int{502}, 2, 3, 502},
		{"bad request not retried", []int{400}, 3, 1, 400},
		{"gone not retried", []int{410}, 3, 1, 410},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := int(attempts.Add(1))
				code := tt.codes[min(n, len(tt.codes))-1]
				w.WriteHeader(code)
				if code >= 300 {
					_, _ = w.Write([]byte("archive receiver unavailable\n"))
				}
			}))
			defer ts.Close()

			a := newAdapter(t, Config{URL: ts.URL, Retries: tt.retries, Backoff: time.Millisecond})
			err := a.Publish(t.Context(), archivedEvent())
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("Publish() error = %v, want nil", err)
				}
				return
			}
			var se *StatusError
			if !errors.As(err, &se) || se.Code != tt.wantCode {
				t.Fatalf("Publish() error = %v, want StatusError %d", err, tt.wantCode)
			}
			if se.Body != "archive receiver unavailable" {
				t.Errorf("StatusError.Body = %q, want trimmed response body", se.Body)
			}
			if !strings.Contains(err.Error(), archivedEvent().FrameID) {
				t.Errorf("error = %v, want frame id in message", err)
			}
		})
	}
}

func TestStatusError_Retryable(t *testing.T) {
	for code, want := range map[int]bool{400: false, 404: false, 429: true, 500: true, 503: true} {
		if got := (&StatusError{Code: code}).Retryable(); got != want {
			t.Errorf("StatusError{%d}.Retryable() = %v, want %v", code, got, want)
		}
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	a := newAdapter(t, Config{URL: ts.URL})
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if err := a.Publish(ctx, archivedEvent()); err == nil {
		t.Fatal("Publish() error = nil, want deadline error")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		want    Config
	}{
		{name: "no url", cfg: Config{}, wantErr: true},
		{name: "negative retries", cfg: Config{URL: "http://archive.local", Retries: -1}, wantErr: true},
		{
			name: "defaults",
			cfg:  Config{URL: "http://archive.local"},
			want: Config{URL: "http://archive.local", Timeout: DefaultTimeout, Backoff: DefaultBackoff},
		},
		{
			name: "explicit",
			cfg:  Config{URL: "http://archive.local", Retries: 5, Timeout: time.Second, Backoff: time.Millisecond},
			want: Config{URL: "http://archive.local", Retries: 5, Timeout: time.Second, Backoff: time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if a.cfg.Timeout != tt.want.Timeout || a.cfg.Backoff != tt.want.Backoff || a.cfg.Retries != tt.want.Retries {
				t.Errorf("config = %+v, want %+v", a.cfg, tt.want)
			}
		})
	}
}
