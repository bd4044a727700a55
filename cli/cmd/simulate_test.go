package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/cli/reader"
)

func newTestApp(commands ...*cli.Command) (*cli.App, *bytes.Buffer) {
	var out bytes.Buffer
	app := cli.NewApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	app.Commands = commands
	app.ExitErrHandler = func(*cli.Context, error) {} // suppress os.Exit
	return app, &out
}

func runSimulate(t *testing.T, args ...string) SimulateResult {
	t.Helper()
	app, out := newTestApp(SimulateCommand())
	base := []string{"imagestream", "simulate", "--quiet", "--format", "json", "--retrieval-addr", "127.0.0.1:0"}
	if err := app.RunContext(t.Context(), append(base, args...)); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	var res SimulateResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode simulate output: %v\n%s", err, out.String())
	}
	return res
}

func TestSimulate_Verifies(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		wantFrames    int
		wantChunks    int
		wantRefetched bool
	}{
		{
			name:       "int16 tiles",
			args:       []string{"--name", "gpi", "--frames", "2", "--width", "30", "--height", "20", "--tile-cols", "16", "--tile-rows", "7"},
			wantFrames: 2,
			wantChunks: 6,
		},
		{
			name:       "unsigned offset",
			args:       []string{"--name", "nirc2", "--width", "8", "--height", "8", "--bzero", "32768", "--wcs"},
			wantFrames: 1,
			wantChunks: 1,
		},
		{
			name: "truncated float samples are refetched",
			args: []string{
				"--name", "osiris", "--bitpix", "-32", "--width", "12", "--height", "6",
				"--tile-cols", "6", "--tile-rows", "3", "--compress", "--bzero", "10", "--fits-codec", "rice",
			},
			wantFrames:    1,
			wantChunks:    4,
			wantRefetched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runSimulate(t, tt.args...)
			if len(res.Frames) != tt.wantFrames {
				t.Fatalf("frames = %d, want %d", len(res.Frames), tt.wantFrames)
			}
			for _, f := range res.Frames {
				if f.Reconstructed == nil || !*f.Reconstructed {
					t.Errorf("frame %s not reconstructed (pending %v)", f.Name, f.Pending)
				}
				if f.Chunks != tt.wantChunks {
					t.Errorf("frame %s chunks = %d, want %d", f.Name, f.Chunks, tt.wantChunks)
				}
				if tt.wantRefetched && f.Refetched != tt.wantChunks {
					t.Errorf("frame %s refetched = %d, want %d", f.Name, f.Refetched, tt.wantChunks)
				}
			}
			if res.Metrics.FramesCompleted != int64(tt.wantFrames) {
				t.Errorf("FramesCompleted = %d, want %d", res.Metrics.FramesCompleted, tt.wantFrames)
			}
			if res.Stream != "memory" {
				t.Errorf("stream = %q, want memory", res.Stream)
			}
		})
	}
}

func TestSimulate_ArchiveThenListAndInspect(t *testing.T) {
	dir := t.TempDir()
	store := []string{"--archive-backend", "fs", "--archive-path", dir}

	res := runSimulate(t, append([]string{
		"--name", "gpi", "--frames", "2", "--width", "16", "--height", "12", "--wcs", "--compression", "zstd",
	}, store...)...)
	if res.Metrics.ArchiveSuccess != 2 {
		t.Fatalf("ArchiveSuccess = %d, want 2", res.Metrics.ArchiveSuccess)
	}

	app, out := newTestApp(ListCommand(), InspectCommand())
	if err := app.RunContext(t.Context(), append([]string{"imagestream", "list", "--format", "json"}, store...)); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var items []reader.ListFrameItem
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out.String())
	}
	if len(items) != 2 {
		t.Fatalf("list = %d items, want 2", len(items))
	}
	var ids []string
	for _, it := range items {
		ids = append(ids, it.FrameID)
		if it.Compression != "zstd" || it.Width != 16 || it.Height != 12 {
			t.Errorf("item = %+v, want zstd 16x12", it)
		}
	}
	for _, f := range res.Frames {
		if !slices.Contains(ids, f.FrameID) {
			t.Errorf("frame %s missing from list %v", f.FrameID, ids)
		}
	}

	out.Reset()
	args := append([]string{"imagestream", "inspect", "--format", "json"}, store...)
	if err := app.RunContext(t.Context(), append(args, res.Frames[0].FrameID)); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var resp reader.InspectFrameResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode inspect output: %v\n%s", err, out.String())
	}
	if resp.FrameID != res.Frames[0].FrameID {
		t.Errorf("frame_id = %q, want %q", resp.FrameID, res.Frames[0].FrameID)
	}
	if resp.FITS == nil || resp.FITS.Bitpix != 16 || !slices.Equal(resp.FITS.Axes, []int{16, 12}) {
		t.Errorf("fits = %+v, want bitpix 16 axes [16 12]", resp.FITS)
	}
	if resp.WCS == nil || resp.WCS.CType1 != "RA---TAN" {
		t.Errorf("wcs = %+v, want RA---TAN", resp.WCS)
	}
}

func TestSimulate_UsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"missing name", nil, "--name is required"},
		{"bad bitpix", []string{"--name", "gpi", "--bitpix", "8"}, "invalid --bitpix"},
		{"zero frames", []string{"--name", "gpi", "--frames", "0"}, "--frames must be >= 1"},
		{"adapter without archive", []string{"--name", "gpi", "--adapter", "webhook", "--adapter-url", "http://x"}, "requires an archive backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(SimulateCommand())
			err := app.RunContext(t.Context(), append([]string{"imagestream", "simulate", "--quiet"}, tt.args...))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantMsg)
			}
			var ec cli.ExitCoder
			if errors.As(err, &ec) && ec.ExitCode() == exitSuccess {
				t.Errorf("exit code = %d, want non-zero", ec.ExitCode())
			}
		})
	}
}
