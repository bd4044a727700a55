package handler

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"

	"github.com/pithecene-io/imagestream/agent"
	"github.com/pithecene-io/imagestream/retrieval"
	"github.com/pithecene-io/imagestream/status"
	"github.com/pithecene-io/imagestream/stream/memory"
	"github.com/pithecene-io/imagestream/types"
)

type failingPoster struct{}

func (failingPoster) Post(context.Context, string, any) error {
	return errors.New("status store down")
}

func newHandler(t *testing.T, name string, opts Options) *Handler {
	t.Helper()
	if opts.Publisher == nil {
		bus := memory.New()
		t.Cleanup(func() { _ = bus.Close() })
		opts.Publisher = bus
	}
	h, err := New(t.Context(), name, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func rowChunk(y uint32, samples ...int16) *types.ImageChunk {
	return &types.ImageChunk{Y: y, Width: uint32(len(samples)), Height: 1, Pix: types.Int16Pixels(samples)}
}

func TestHandler_RowScenarioOverTCP(t *testing.T) {
	h := newHandler(t, "gpi", Options{})
	ctx := t.Context()

	if err := h.Start(ctx, types.NewFrameHeader("gpi", 4, 2, types.PixelInt16)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first, err := h.TransferData(ctx, rowChunk(0, 1, 2, 3, 4))
	if err != nil || first != 2 {
		t.Fatalf("TransferData = %d, %v, want 2", first, err)
	}
	second, err := h.TransferData(ctx, rowChunk(1, 5, 6, 7, 8))
	if err != nil || second != 3 {
		t.Fatalf("TransferData = %d, %v, want 3", second, err)
	}

	c := retrieval.NewClient(h.Addr())
	tests := []struct {
		seq  uint32
		want []int16
	}{
		{2, []int16{1, 2, 3, 4}},
		{3, []int16{5, 6, 7, 8}},
	}
	for _, tt := range tests {
		ev, err := c.Retrieve(ctx, RetrievalChannel("gpi"), tt.seq)
		if err != nil {
			t.Fatalf("Retrieve(%d) failed: %v", tt.seq, err)
		}
		if !slices.Equal(ev.Data.Data.I16, tt.want) {
			t.Errorf("Retrieve(%d) = %v, want %v", tt.seq, ev.Data.Data.I16, tt.want)
		}
	}
}

func TestHandler_SupersededFrameOverTCP(t *testing.T) {
	h := newHandler(t, "gpi", Options{})
	ctx := t.Context()

	_ = h.Start(ctx, types.NewFrameHeader("gpi", 4, 2, types.PixelInt16))
	seq, _ := h.TransferData(ctx, rowChunk(0, 1, 2, 3, 4))
	if err := h.Start(ctx, types.NewFrameHeader("gpi", 4, 2, types.PixelInt16)); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	_, err := retrieval.NewClient(h.Addr()).Retrieve(ctx, RetrievalChannel("gpi"), seq)
	if !retrieval.IsNotFound(err) {
		t.Errorf("Retrieve(%d) err = %v, want chunk not found", seq, err)
	}
	if _, err := h.Retrieve(ctx, seq); !errors.Is(err, agent.ErrChunkNotFound) {
		t.Errorf("in-process Retrieve err = %v, want ErrChunkNotFound", err)
	}
}

func TestHandler_PostsPorts(t *testing.T) {
	poster := status.NewMemory()
	h := newHandler(t, "gpi", Options{Status: poster})

	want := strconv.Itoa(h.Port())
	for _, item := range []string{"gpiReq.port", "gpi.server_port"} {
		if v, ok := poster.Get(item); !ok || v != want {
			t.Errorf("%s = %v, want %s", item, v, want)
		}
	}
}

func TestHandler_StatusFailureNotFatal(t *testing.T) {
	h := newHandler(t, "gpi", Options{Status: failingPoster{}})
	if h.Port() == 0 {
		t.Error("Port() = 0")
	}
}

func TestHandler_SharedServer(t *testing.T) {
	a := newHandler(t, "gpi", Options{})
	b := newHandler(t, "acq", Options{})
	if a.Addr() != b.Addr() {
		t.Fatalf("handlers use different servers: %s, %s", a.Addr(), b.Addr())
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if retrieval.Running() == nil {
		t.Fatal("server stopped while another handler holds it")
	}
	_, err := retrieval.NewClient(a.Addr()).Retrieve(t.Context(), RetrievalChannel("acq"), 2)
	if !errors.Is(err, retrieval.ErrUnknownChannel) {
		t.Errorf("closed channel err = %v, want ErrUnknownChannel", err)
	}
}

func TestHandler_DuplicateName(t *testing.T) {
	newHandler(t, "gpi", Options{})
	_, err := New(t.Context(), "gpi", Options{Publisher: memory.New()})
	if !errors.Is(err, retrieval.ErrChannelRegistered) {
		t.Errorf("New err = %v, want ErrChannelRegistered", err)
	}
}

func TestHandler_CloseIdempotent(t *testing.T) {
	h, err := New(t.Context(), "gpi", Options{Publisher: memory.New()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if retrieval.Running() != nil {
		t.Error("server still running after last handler closed")
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(t.Context(), "", Options{Publisher: memory.New()}); err == nil {
		t.Error("New with empty name succeeded")
	}
	if _, err := New(t.Context(), "gpi", Options{}); err == nil {
		t.Error("New without publisher succeeded")
	}
}
