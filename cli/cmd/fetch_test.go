package cmd

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/handler"
	"github.com/pithecene-io/imagestream/retrieval"
	"github.com/pithecene-io/imagestream/status"
	"github.com/pithecene-io/imagestream/stream/memory"
	streamredis "github.com/pithecene-io/imagestream/stream/redis"
	"github.com/pithecene-io/imagestream/types"
)

// newTestHandler starts a handler holding one 4x2 int16 frame delivered
// as two rows at sequence numbers 2 and 3.
func newTestHandler(t *testing.T, name string, poster status.Poster) *handler.Handler {
	t.Helper()
	bus := memory.New()
	h, err := handler.New(t.Context(), name, handler.Options{
		Publisher: bus,
		Retrieval: retrieval.Config{Addr: "127.0.0.1:0"},
		Status:    poster,
	})
	if err != nil {
		t.Fatalf("handler.New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = h.Close()
		_ = bus.Close()
	})

	if err := h.Start(t.Context(), types.NewFrameHeader("img", 4, 2, types.PixelInt16)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for y, row := range [][]int16{{1, 2, 3, 4}, {5, 6, 7, 8}} {
		c := &types.ImageChunk{Y: uint32(y), Width: 4, Height: 1, Pix: types.Int16Pixels(row)}
		if _, err := h.TransferData(t.Context(), c); err != nil {
			t.Fatalf("TransferData failed: %v", err)
		}
	}
	return h
}

func runFetch(t *testing.T, args ...string) (*types.Event, error) {
	t.Helper()
	app, out := newTestApp(FetchCommand())
	err := app.RunContext(t.Context(), append([]string{"imagestream", "fetch", "--format", "json"}, args...))
	if err != nil {
		return nil, err
	}
	var ev types.Event
	if err := json.Unmarshal(out.Bytes(), &ev); err != nil {
		t.Fatalf("decode fetch output: %v\n%s", err, out.String())
	}
	return &ev, nil
}

func TestFetch_ByAddr(t *testing.T) {
	h := newTestHandler(t, "fetchcam", nil)

	ev, err := runFetch(t, "--name", "fetchcam", "--retrieval-addr", h.Addr(), "3")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if ev.Kind != types.KindData || ev.CountIn != 3 {
		t.Errorf("event = %s seq %d, want data seq 3", ev.Kind, ev.CountIn)
	}
	if ev.Data == nil || !slices.Equal(ev.Data.Data.I16, []int16{5, 6, 7, 8}) {
		t.Errorf("event data = %+v, want [5 6 7 8]", ev.Data)
	}
}

func TestFetch_NotFound(t *testing.T) {
	h := newTestHandler(t, "fetchcam", nil)

	_, err := runFetch(t, "--name", "fetchcam", "--retrieval-addr", h.Addr(), "999")
	var ec cli.ExitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != exitIncomplete {
		t.Errorf("err = %v, want exit code %d", err, exitIncomplete)
	}
}

func TestFetch_PortFromStatusItem(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()
	poster, err := streamredis.NewStatusPoster(url, 0)
	if err != nil {
		t.Fatalf("NewStatusPoster failed: %v", err)
	}
	t.Cleanup(func() { _ = poster.Close() })
	newTestHandler(t, "statuscam", poster)

	ev, err := runFetch(t, "--name", "statuscam", "--status", "redis", "--redis-url", url, "2")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !slices.Equal(ev.Data.Data.I16, []int16{1, 2, 3, 4}) {
		t.Errorf("samples = %v, want [1 2 3 4]", ev.Data.Data.I16)
	}

	_, err = runFetch(t, "--name", "othercam", "--status", "redis", "--redis-url", url, "2")
	if err == nil {
		t.Error("fetch for a handler without a status item succeeded")
	}
}

func TestFetch_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no seq", []string{"--name", "x", "--retrieval-addr", "127.0.0.1:1"}},
		{"bad seq", []string{"--name", "x", "--retrieval-addr", "127.0.0.1:1", "abc"}},
		{"no channel", []string{"--retrieval-addr", "127.0.0.1:1", "2"}},
		{"no addr", []string{"--name", "x", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runFetch(t, tt.args...)
			var ec cli.ExitCoder
			if !errors.As(err, &ec) || ec.ExitCode() != exitConfigError {
				t.Errorf("err = %v, want exit code %d", err, exitConfigError)
			}
		})
	}
}
