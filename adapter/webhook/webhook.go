// Package webhook POSTs frame archive notifications as JSON.
//
// Each request carries the event type, frame ID and archive digest as
// X-Imagestream-* headers so receivers can route or deduplicate without
// parsing the body. Network errors, 429 and 5xx responses are retried
// with exponential backoff; any other non-2xx response fails at once.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/imagestream/adapter"
	"github.com/pithecene-io/imagestream/iox"
)

// Defaults applied by New.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Notification headers.
const (
	HeaderEvent  = "X-Imagestream-Event"
	HeaderFrame  = "X-Imagestream-Frame"
	HeaderDigest = "X-Imagestream-Digest"
)

// excerptLimit bounds the response body kept in a StatusError.
const excerptLimit = 256

// Config configures the webhook adapter.
type Config struct {
	// URL is the endpoint to POST to. Required.
	URL string
	// Headers are added to every request after the notification headers.
	Headers map[string]string
	Timeout time.Duration
	// Retries is the number of attempts after the first.
	Retries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
}

// Adapter publishes archive notifications via HTTP POST.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg, fills in defaults and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	// Body is the start of the response body, if any.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the receiver may accept a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Publish POSTs event, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.FrameArchivedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	header := a.header(event)

	err = iox.Retry(ctx, a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		err := a.send(ctx, header, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return iox.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", event.FrameID, err)
	}
	return nil
}

func (a *Adapter) header(event *adapter.FrameArchivedEvent) http.Header {
	h := make(http.Header, 4+len(a.cfg.Headers))
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderFrame, event.FrameID)
	if event.Digest != "" {
		h.Set(HeaderDigest, event.Digest)
	}
	for k, v := range a.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (a *Adapter) send(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return iox.Permanent(err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, excerptLimit))
	_, _ = io.Copy(io.Discard, resp.Body)
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
