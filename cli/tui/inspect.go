package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/imagestream/cli/reader"
)

// InspectModel shows one archived frame. FITS header cards scroll in a
// viewport once the terminal size is known.
type InspectModel struct {
	data     *reader.InspectFrameResponse
	summary  string
	cards    string
	header   viewport.Model
	sized    bool
	quitting bool
}

// NewInspectModel returns a model for data, which may be nil.
func NewInspectModel(data *reader.InspectFrameResponse) InspectModel {
	m := InspectModel{data: data}
	if data != nil {
		m.summary = summaryRows(data)
		m.cards = headerCards(data)
	}
	return m
}

func summaryRows(d *reader.InspectFrameResponse) string {
	rows := [][2]string{
		{"Frame ID", d.FrameID},
		{"Image", d.Name},
		{"Day", d.Day},
		{"Path", d.ImagePath},
		{"Snapshot", d.SnapshotID},
		{"Compression", d.Compression},
		{"Digest", d.Digest},
		{"Chunks", strconv.Itoa(d.Chunks)},
		{"Events", strconv.FormatUint(uint64(d.Events), 10)},
	}
	if f := d.FITS; f != nil {
		rows = append(rows,
			[2]string{"BITPIX", strconv.Itoa(f.Bitpix)},
			[2]string{"Axes", fmt.Sprint(f.Axes)},
			[2]string{"Min/Max", fmt.Sprintf("%g / %g", f.Min, f.Max)},
			[2]string{"Mean", fmt.Sprintf("%.4g", f.Mean)},
		)
	}
	if w := d.WCS; w != nil {
		rows = append(rows,
			[2]string{"CTYPE", strings.TrimSpace(w.CType1 + " " + w.CType2)},
			[2]string{"CRVAL", fmt.Sprintf("%g %g", w.CRVal1, w.CRVal2)},
		)
	}

	var b strings.Builder
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		b.WriteString(LabelStyle.Render(r[0]+":") + " " + ValueStyle.Render(r[1]) + "\n")
	}
	return b.String()
}

func headerCards(d *reader.InspectFrameResponse) string {
	if d.FITS == nil {
		return ""
	}
	lines := make([]string, len(d.FITS.Cards))
	for i, c := range d.FITS.Cards {
		lines[i] = LabelStyle.Render(c.Name) + " " + ValueStyle.Render(c.Value)
	}
	return strings.Join(lines, "\n")
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// box border, padding, title, section heading and help line
		const chrome = 10
		h := max(msg.Height-chrome-lipgloss.Height(m.summary), 3)
		if !m.sized {
			m.header = viewport.New(max(msg.Width-6, 20), h)
			m.header.SetContent(m.cards)
			m.sized = true
		} else {
			m.header.Width, m.header.Height = max(msg.Width-6, 20), h
		}
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	if !m.sized {
		return m, nil
	}
	var cmd tea.Cmd
	m.header, cmd = m.header.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	help := "q quit"
	if m.data == nil {
		return "No frame data\n" + HelpStyle.Render(help)
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Frame Details") + "\n\n")
	b.WriteString(m.summary)
	if m.cards != "" {
		b.WriteString("\n" + SectionStyle.Render("Header") + "\n")
		if m.sized {
			b.WriteString(m.header.View())
			help = fmt.Sprintf("up/down scroll (%3.f%%) • q quit", m.header.ScrollPercent()*100)
		} else {
			b.WriteString(m.cards)
		}
	}
	return BoxStyle.Render(b.String()) + "\n" + HelpStyle.Render(help)
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect view full screen.
func RunInspectTUI(data *reader.InspectFrameResponse) error {
	return runProgram(NewInspectModel(data))
}

// RenderInspectStatic renders the inspect view once, with every header
// card shown.
func RenderInspectStatic(data *reader.InspectFrameResponse) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(NewInspectModel(data).View())
}
