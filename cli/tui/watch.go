package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/imagestream/display"
)

// Frame states shown by the watch view.
const (
	StateWaiting    = "waiting"
	StateReceiving  = "receiving"
	StateRefetching = "refetching"
	StateComplete   = "complete"
	StateIncomplete = "incomplete"
	StateError      = "error"
)

// FrameState classifies reconstruction progress.
func FrameState(p display.Progress) string {
	switch {
	case p.FrameID == "":
		return StateWaiting
	case !p.Done:
		return StateReceiving
	case len(p.Pending) > 0:
		return StateRefetching
	default:
		return StateComplete
	}
}

type progressMsg display.Progress

type streamEndMsg struct{ err error }

// WatchModel follows live reconstruction of frames on one channel.
type WatchModel struct {
	channel string
	updates <-chan display.Progress
	errc    <-chan error

	spinner  spinner.Model
	progress display.Progress
	frames   int
	ended    bool
	err      error
	width    int
	quitting bool
}

// NewWatchModel creates a watch model. updates is closed when the stream
// ends; errc, when non-nil, then yields the stream's terminal error.
func NewWatchModel(channel string, updates <-chan display.Progress, errc <-chan error) WatchModel {
	return WatchModel{
		channel: channel,
		updates: updates,
		errc:    errc,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Err returns the stream's terminal error, if any.
func (m WatchModel) Err() error {
	return m.err
}

// Progress returns the most recent progress.
func (m WatchModel) Progress() display.Progress {
	return m.progress
}

// Frames returns the number of distinct frames seen.
func (m WatchModel) Frames() int {
	return m.frames
}

func (m WatchModel) wait() tea.Cmd {
	updates, errc := m.updates, m.errc
	return func() tea.Msg {
		p, ok := <-updates
		if ok {
			return progressMsg(p)
		}
		if errc == nil {
			return streamEndMsg{}
		}
		return streamEndMsg{err: <-errc}
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait())
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case progressMsg:
		p := display.Progress(msg)
		if p.FrameID != "" && p.FrameID != m.progress.FrameID {
			m.frames++
		}
		m.progress = p
		return m, m.wait()

	case streamEndMsg:
		m.ended = true
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.ended {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) state() string {
	switch {
	case m.err != nil:
		return StateError
	case m.ended && FrameState(m.progress) != StateComplete && m.progress.FrameID != "":
		return StateIncomplete
	default:
		return FrameState(m.progress)
	}
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	p := m.progress
	var b strings.Builder
	title := "Watching " + m.channel
	if !m.ended {
		title = m.spinner.View() + " " + title
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	state := m.state()
	rows := [][]string{
		{"State", state},
		{"Frames Seen", fmt.Sprintf("%d", m.frames)},
	}
	if p.FrameID != "" {
		rows = append(rows,
			[]string{"Frame ID", p.FrameID},
			[]string{"Image", p.Name},
			[]string{"Geometry", fmt.Sprintf("%dx%d %s", p.Width, p.Height, p.Kind)},
			[]string{"Last Seq", fmt.Sprintf("%d", p.LastSeq)},
		)
	}
	if len(p.Pending) > 0 {
		rows = append(rows, []string{"Pending", formatSeqs(p.Pending, 8)})
	}
	if m.err != nil {
		rows = append(rows, []string{"Error", m.err.Error()})
	}
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		switch row[0] {
		case "State":
			value = StateStyle(state).Render(row[1])
		case "Error":
			value = ErrorStyle.Render(row[1])
		}
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), value)
	}
	b.WriteString("\n")

	boxes := []string{
		renderStatBox("Chunks", p.Chunks, accentColor),
		renderStatBox("Gaps", p.Gaps, missingColor),
		renderStatBox("Refetched", p.Refetched, completeColor),
		renderStatBox("Pending", len(p.Pending), failedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func formatSeqs(seqs []uint32, limit int) string {
	parts := make([]string, 0, min(len(seqs), limit))
	for i, s := range seqs {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (+%d)", len(seqs)-limit))
			break
		}
		parts = append(parts, fmt.Sprintf("%d", s))
	}
	return strings.Join(parts, " ")
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunWatch runs the watch TUI until the user quits and returns the
// stream's terminal error, if it ended with one.
func RunWatch(channel string, updates <-chan display.Progress, errc <-chan error) error {
	final, err := tea.NewProgram(NewWatchModel(channel, updates, errc), tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(WatchModel); ok {
		return m.Err()
	}
	return nil
}
