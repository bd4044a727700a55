package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/imagestream/cli/reader"
)

// View types with TUI support.
const (
	ViewInspectFrame = "inspect_frame"
	ViewWatch        = "watch"
)

// Run starts the static TUI for viewType.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewInspectFrame:
		resp, ok := data.(*reader.InspectFrameResponse)
		if !ok {
			return fmt.Errorf("invalid data type %T for %s", data, viewType)
		}
		return RunInspectTUI(resp)
	case ViewWatch:
		return fmt.Errorf("%s requires a progress stream; use RunWatch", viewType)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	switch viewType {
	case ViewInspectFrame, ViewWatch:
		return true
	default:
		return false
	}
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewInspectFrame, ViewWatch}
}

func runProgram(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
