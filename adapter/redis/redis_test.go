package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/imagestream/adapter"
	"github.com/pithecene-io/imagestream/iox"
)

func archivedEvent(name string) *adapter.FrameArchivedEvent {
	return &adapter.FrameArchivedEvent{
		ContractVersion: "0.1.0",
		EventType:       adapter.EventTypeFrameArchived,
		FrameID:         "c1a9e0f2-77b4-4d0e-8f3a-2b6d5e4c1a90",
		Name:            name,
		Day:             "2026-03-14",
		Width:           2048,
		Height:          2048,
		Bitpix:          16,
		StoragePath:     "frames/day=2026-03-14/frame_id=c1a9e0f2/image.fits",
		Compression:     "none",
		Chunks:          16,
		Events:          18,
		Timestamp:       "2026-03-14T09:30:00Z",
	}
}

// receive reads one message in the background. miniredis delivers pub/sub
// synchronously, so the reader has to be running before Publish.
func receive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() { ch <- <-sub.Messages() }()
	return ch
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

func TestPublish_Channel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		handler string
		want    string
	}{
		{"default", "", "gpi", "imagestream:frame_archived"},
		{"fixed", "keck:archive", "nirc2", "keck:archive"},
		{"per handler", "keck:archive:{name}", "osiris", "keck:archive:osiris"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			a := newAdapter(t, Config{URL: "redis://" + mr.Addr(), Channel: tt.channel})
			ev := archivedEvent(tt.handler)
			if got := a.ChannelFor(ev); got != tt.want {
				t.Errorf("ChannelFor() = %q, want %q", got, tt.want)
			}

			sub := mr.NewSubscriber()
			sub.Subscribe(tt.want)
			ch := receive(sub)

			if err := a.Publish(t.Context(), ev); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			var msg miniredis.PubsubMessage
			select {
			case msg = <-ch:
			case <-time.After(5 * time.Second):
				t.Fatal("no message on " + tt.want)
			}
			if msg.Channel != tt.want {
				t.Errorf("message channel = %q, want %q", msg.Channel, tt.want)
			}
			var got adapter.FrameArchivedEvent
			if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
				t.Fatalf("decode message: %v", err)
			}
			if got != *ev {
				t.Errorf("message = %+v, want %+v", got, *ev)
			}
		})
	}
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*miniredis.Miniredis) context.Context
		is    error
	}{
		{
			name: "server gone",
			setup: func(mr *miniredis.Miniredis) context.Context {
				mr.Close()
				return context.Background()
			},
		},
		{
			name: "canceled",
			setup: func(*miniredis.Miniredis) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			is: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			a := newAdapter(t, Config{URL: "redis://" + mr.Addr(), Retries: 1, Timeout: time.Second, Backoff: time.Millisecond})
			err := a.Publish(tt.setup(mr), archivedEvent("gpi"))
			if err == nil {
				t.Fatal("Publish() error = nil, want error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Publish() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{URL: "tcp://nowhere"},
		{URL: "redis://localhost:6379", Retries: -1},
	} {
		if a, err := New(cfg); err == nil {
			iox.DiscardClose(a)
			t.Errorf("New(%+v) error = nil, want error", cfg)
		}
	}

	a := newAdapter(t, Config{URL: "redis://localhost:6379/2"})
	if a.cfg.Channel != DefaultChannel || a.cfg.Timeout != DefaultTimeout || a.cfg.Backoff != DefaultBackoff {
		t.Errorf("defaults = %+v, want channel %q timeout %v backoff %v", a.cfg, DefaultChannel, DefaultTimeout, DefaultBackoff)
	}
}
