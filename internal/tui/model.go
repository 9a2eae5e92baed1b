// SPDX-License-Identifier: MIT
/*
Package tui is the terminal front end: a live preview of the rendered frames
with playback, recording and effect controls, and an output device picker.
*/
package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"spectrail/internal/engine"
	"spectrail/internal/record"
	"spectrail/internal/synth"
)

// refreshInterval is how often the preview is redrawn.
const refreshInterval = time.Second / 20

// somethingStep is the change of one +/- key press.
const somethingStep = 5

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))
)

// Controller is the part of the engine the TUI drives.
type Controller interface {
	TogglePlay() error
	ToggleMirror() error
	AdjustSomething(delta float64) error
	SetSaveRecordings(on bool) error
	SaveRecordings() bool
	SetSynth(name string) error
	Status() engine.Status
}

type keyMap struct {
	Play   key.Binding
	Record key.Binding
	Mirror key.Binding
	More   key.Binding
	Less   key.Binding
	Synth  key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Play:   key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/stop")),
	Record: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "save recordings")),
	Mirror: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mirror")),
	More:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "something")),
	Less:   key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "something")),
	Synth:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "synth")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Play, k.Record, k.Mirror, k.More, k.Less, k.Synth, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

type refreshMsg time.Time

// ArtifactMsg announces a stored recording.
type ArtifactMsg record.Artifact

// EndedMsg announces the end of the clip.
type EndedMsg struct{}

// Model is the Bubble Tea model of the player screen.
type Model struct {
	ctrl    Controller
	preview *Preview
	status  engine.Status
	notice  string
	err     error
	width   int
	height  int
}

// NewModel creates the player screen.
func NewModel(ctrl Controller, preview *Preview) Model {
	return Model{ctrl: ctrl, preview: preview, status: ctrl.Status()}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return refresh()
}

// Update handles input and engine notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		// Title, status, notice and help take five lines.
		m.preview.SetSize(msg.Width, max(msg.Height-5, 1))

	case refreshMsg:
		m.status = m.ctrl.Status()
		return m, refresh()

	case ArtifactMsg:
		m.notice = fmt.Sprintf("Saved %s (%d bytes): %s", msg.Filename, msg.Size, msg.URL)

	case EndedMsg:
		m.notice = "Playback ended"

	case tea.KeyMsg:
		var err error
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Play):
			err = m.ctrl.TogglePlay()
		case key.Matches(msg, keys.Record):
			err = m.ctrl.SetSaveRecordings(!m.ctrl.SaveRecordings())
		case key.Matches(msg, keys.Mirror):
			err = m.ctrl.ToggleMirror()
		case key.Matches(msg, keys.More):
			err = m.ctrl.AdjustSomething(somethingStep)
		case key.Matches(msg, keys.Less):
			err = m.ctrl.AdjustSomething(-somethingStep)
		case key.Matches(msg, keys.Synth):
			err = m.ctrl.SetSynth(nextSynth(m.status.Synth))
		}
		m.err = err
		m.status = m.ctrl.Status()
	}
	return m, nil
}

// nextSynth cycles through the registered synthesizers.
func nextSynth(current string) string {
	names := synth.Names()
	i := slices.Index(names, strings.ToLower(current))
	return names[(i+1)%len(names)]
}

// View renders the preview and the status lines.
func (m Model) View() string {
	frame, _ := m.preview.View()
	if frame == "" {
		frame = infoStyle.Render("Waiting for frames...")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("spectrail"))
	sb.WriteString(" ")
	sb.WriteString(infoStyle.Render(m.status.Clip))
	sb.WriteString("\n")
	sb.WriteString(frame)
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")
	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	case m.notice != "":
		sb.WriteString(infoStyle.Render(m.notice))
	}
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(keys.help()))
	return sb.String()
}

func (m Model) statusLine() string {
	st := m.status
	state := "stopped"
	if st.Playing {
		state = fmt.Sprintf("playing %s / %s", st.Position.Truncate(time.Second), st.Duration.Truncate(time.Second))
	}

	parts := []string{
		highlightStyle.Render(state),
		fmt.Sprintf("synth %s", st.Synth),
		fmt.Sprintf("something %.0f", st.Something),
	}
	if st.Mirror {
		parts = append(parts, "mirror")
	}
	if st.Note != "" {
		parts = append(parts, fmt.Sprintf("%s (%.0f Hz)", st.Note, st.PeakHz))
	}
	switch {
	case st.Recording == record.Recording:
		parts = append(parts, recordingStyle.Render("● REC"))
	case st.SaveRecordings:
		parts = append(parts, "rec armed")
	}
	if st.Failure != nil {
		parts = append(parts, errorStyle.Render("render failed: "+st.Failure.Error()))
	}
	if st.Clients > 0 {
		parts = append(parts, fmt.Sprintf("%d viewers", st.Clients))
	}
	return strings.Join(parts, " • ")
}

// Run shows the player screen until the user quits. OnArtifact and OnEnded
// of e are redirected to the screen, so e must not be playing yet; with
// autoplay the clip starts once they are in place.
func Run(e *engine.Engine, preview *Preview, autoplay bool) error {
	p := tea.NewProgram(NewModel(e, preview), tea.WithAltScreen())

	e.OnArtifact = func(a record.Artifact) { go p.Send(ArtifactMsg(a)) }
	e.OnEnded = func() { go p.Send(EndedMsg{}) }

	if autoplay {
		if err := e.Play(); err != nil {
			return err
		}
	}
	_, err := p.Run()
	return err
}
