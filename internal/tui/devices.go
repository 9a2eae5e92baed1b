// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"spectrail/internal/audio"
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

var (
	upKey     = key.NewBinding(key.WithKeys("up", "k"))
	downKey   = key.NewBinding(key.WithKeys("down", "j"))
	enterKey  = key.NewBinding(key.WithKeys("enter"))
	escKey    = key.NewBinding(key.WithKeys("esc"))
	toggleKey = key.NewBinding(key.WithKeys("left", "right", "h", "l", " "))
)

// DeviceListModel lets the user pick an output device and its latency.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	lowLatency bool
	chosen     bool
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a picker over the host's output devices.
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{fetch: audio.HostDevices, activeScreen: ListScreen}
}

// Init fetches the devices.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		outputs := devices[:0:0]
		for _, d := range devices {
			if d.MaxOutputChannels > 0 {
				outputs = append(outputs, d)
			}
		}
		return devicesMsg{outputs}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.content())

	case devicesMsg:
		m.devices = msg.devices
		m.viewport.SetContent(m.content())

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKey):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKey):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKey):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
				}
			}
		case ConfigScreen:
			switch {
			case key.Matches(msg, escKey):
				m.activeScreen = ListScreen
			case key.Matches(msg, toggleKey):
				m.lowLatency = !m.lowLatency
			case key.Matches(msg, enterKey):
				m.chosen = true
				return m, tea.Quit
			}
		}
		m.viewport.SetContent(m.content())
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Output Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("←/→: Toggle latency • Enter: Use device • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) content() string {
	if m.activeScreen == ConfigScreen {
		return m.renderDeviceConfig()
	}
	return m.renderDevices()
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No output devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s\n", device.ID, device.Name)
		info += fmt.Sprintf("    Output channels: %d, default sample rate: %.0f Hz\n",
			device.MaxOutputChannels, device.DefaultSampleRate)
		info += fmt.Sprintf("    Latency: %v (low) / %v (high)\n", device.LowLatency, device.HighLatency)
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDeviceConfig formats the device configuration screen
func (m DeviceListModel) renderDeviceConfig() string {
	device := m.devices[m.selectedIndex]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Latency:\n")
	for _, opt := range []struct {
		low   bool
		label string
	}{
		{true, fmt.Sprintf("low (%v)", device.LowLatency)},
		{false, fmt.Sprintf("high (%v)", device.HighLatency)},
	} {
		marker := " "
		if opt.low == m.lowLatency {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %s\n", marker, opt.label)
		if opt.low == m.lowLatency {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// Choice returns the picked device options, or false if the user quit.
func (m DeviceListModel) Choice() (audio.PlayerOptions, bool) {
	if !m.chosen || len(m.devices) == 0 {
		return audio.PlayerOptions{}, false
	}
	return audio.PlayerOptions{
		DeviceID:   m.devices[m.selectedIndex].ID,
		LowLatency: m.lowLatency,
	}, true
}

// PickDevice launches the device picker. PortAudio must be initialised.
func PickDevice() (audio.PlayerOptions, bool, error) {
	final, err := tea.NewProgram(NewDeviceListModel(), tea.WithAltScreen()).Run()
	if err != nil {
		return audio.PlayerOptions{}, false, err
	}
	opts, ok := final.(DeviceListModel).Choice()
	return opts, ok, nil
}
