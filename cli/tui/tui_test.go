package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/imagestream/cli/reader"
	"github.com/pithecene-io/imagestream/display"
	"github.com/pithecene-io/imagestream/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"inspect_frame", true},
		{"watch", true},
		{"list_frames", false},
		{"fetch", false},
		{"simulate", false},
		{"version", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	for _, v := range SupportedTUIViews() {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_Rejects(t *testing.T) {
	tests := []struct {
		viewType string
		data     any
	}{
		{"list_frames", nil},
		{ViewWatch, nil},
		{ViewInspectFrame, "not a frame"},
	}
	for _, tt := range tests {
		if err := Run(tt.viewType, tt.data); err == nil {
			t.Errorf("Run(%q, %T) succeeded, want error", tt.viewType, tt.data)
		}
	}
}

func TestFrameState(t *testing.T) {
	tests := []struct {
		name string
		p    display.Progress
		want string
	}{
		{"no frame", display.Progress{}, StateWaiting},
		{"receiving", display.Progress{FrameID: "f"}, StateReceiving},
		{"pending", display.Progress{FrameID: "f", Done: true, Pending: []uint32{3}}, StateRefetching},
		{"complete", display.Progress{FrameID: "f", Done: true}, StateComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameState(tt.p); got != tt.want {
				t.Errorf("FrameState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatchModel_FollowsProgress(t *testing.T) {
	updates := make(chan display.Progress, 4)
	errc := make(chan error, 1)
	m := NewWatchModel("imagestream:gpi", updates, errc)

	frame := display.Progress{FrameID: "f1", Name: "gpi", Width: 4, Height: 2, Kind: types.PixelInt16, LastSeq: 3, Chunks: 1}
	updates <- frame
	model, cmd := m.Update(m.wait()())
	m = model.(WatchModel)
	if cmd == nil {
		t.Fatal("progress update did not schedule the next wait")
	}

	frame.Done, frame.Pending, frame.LastSeq = true, []uint32{4}, 5
	updates <- frame
	model, _ = m.Update(m.wait()())
	m = model.(WatchModel)

	updates <- display.Progress{FrameID: "f2", Name: "gpi"}
	model, _ = m.Update(m.wait()())
	m = model.(WatchModel)

	if m.Frames() != 2 {
		t.Errorf("Frames() = %d, want 2", m.Frames())
	}
	if m.Progress().FrameID != "f2" {
		t.Errorf("Progress().FrameID = %q, want f2", m.Progress().FrameID)
	}

	close(updates)
	errc <- errors.New("connection reset")
	model, _ = m.Update(m.wait()())
	m = model.(WatchModel)
	if m.Err() == nil || m.state() != StateError {
		t.Errorf("after stream error: err = %v, state = %q", m.Err(), m.state())
	}
	if view := m.View(); !strings.Contains(view, "connection reset") {
		t.Errorf("View() missing error: %s", view)
	}
}

func TestWatchModel_View(t *testing.T) {
	m := NewWatchModel("imagestream:gpi", nil, nil)
	model, _ := m.Update(progressMsg(display.Progress{
		FrameID: "f1", Name: "gpi", Width: 4, Height: 2, Kind: types.PixelInt16,
		Done: true, Pending: []uint32{3, 4}, Gaps: 2,
	}))
	view := model.View()
	for _, want := range []string{"imagestream:gpi", "f1", "4x2", "refetching", "3 4"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestWatchModel_EndedIncomplete(t *testing.T) {
	m := NewWatchModel("c", nil, nil)
	model, _ := m.Update(progressMsg(display.Progress{FrameID: "f1"}))
	model, _ = model.Update(streamEndMsg{})
	if got := model.(WatchModel).state(); got != StateIncomplete {
		t.Errorf("state = %q, want %q", got, StateIncomplete)
	}
}

func TestWatchModel_Quit(t *testing.T) {
	m := NewWatchModel("c", nil, nil)
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q did not return a command")
	}
	if model.View() != "" {
		t.Errorf("View() after quit = %q, want empty", model.View())
	}
}

func TestRenderInspectStatic(t *testing.T) {
	out := RenderInspectStatic(&reader.InspectFrameResponse{
		FrameID: "f1",
		Name:    "gpi",
		FITS: &reader.FITSInfo{
			Bitpix: 16,
			Axes:   []int{4, 2},
			Cards:  []reader.Card{{Name: "OBJECT", Value: "gpi"}},
			Max:    8,
		},
	})
	for _, want := range []string{"Frame Details", "f1", "[4 2]", "OBJECT"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderInspectStatic missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(RenderInspectStatic(nil), "No frame data") {
		t.Error("RenderInspectStatic(nil) missing placeholder")
	}
}

func TestInspectModel_ScrollsHeader(t *testing.T) {
	var cards []reader.Card
	for i := range 60 {
		cards = append(cards, reader.Card{Name: fmt.Sprintf("HIERARCH%02d", i), Value: "T"})
	}
	m := NewInspectModel(&reader.InspectFrameResponse{FrameID: "f1", FITS: &reader.FITSInfo{Bitpix: -32, Cards: cards}})

	model, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	view := model.View()
	if !strings.Contains(view, "HIERARCH00") || strings.Contains(view, "HIERARCH59") {
		t.Fatalf("sized view should show the first cards only:\n%s", view)
	}
	if !strings.Contains(view, "scroll") {
		t.Errorf("sized view missing scroll help:\n%s", view)
	}

	for range 60 {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	if view := model.View(); !strings.Contains(view, "HIERARCH59") {
		t.Errorf("scrolled view missing last card:\n%s", view)
	}
}
