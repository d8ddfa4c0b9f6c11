// ABOUTME: Bubbletea model for the voice client TUI
// ABOUTME: Shows mixer connection, device formats, input levels and jitter buffer state
package ui

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected bool
	mixerName string

	// Client state from the last stats snapshot
	stats    voice.Stats
	hasStats bool

	// Last control error shown under the stats
	lastError string

	// Runtime
	goroutines int
	memAlloc   uint64
	memSys     uint64

	showDebug bool

	width  int
	height int

	controls *Controls
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderDevices()
	s += m.renderInput()
	s += m.renderOutput()
	s += m.renderFlags()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", truncate(m.mixerName, 32))
	}

	return fmt.Sprintf(`┌─ Resonate Voice ─────────────────────────────────────┐
│ Status: %-45s │
├──────────────────────────────────────────────────────┤
`, connStatus)
}

func (m Model) renderDevices() string {
	if !m.hasStats {
		return "│ No audio devices                                     │\n"
	}
	in := "(none)"
	if m.stats.InputDevice != "" {
		in = fmt.Sprintf("%s %s", truncate(m.stats.InputDevice, 24), formatName(m.stats.InputFormat.SampleRate, m.stats.InputFormat.Channels))
	}
	out := "(none)"
	if m.stats.OutputDevice != "" {
		out = fmt.Sprintf("%s %s", truncate(m.stats.OutputDevice, 24), formatName(m.stats.OutputFormat.SampleRate, m.stats.OutputFormat.Channels))
	}
	return fmt.Sprintf("│ Input:  %-45s │\n│ Output: %-45s │\n", in, out)
}

func (m Model) renderInput() string {
	muteIcon := ""
	if m.stats.Muted {
		muteIcon = " MUTED"
	}
	level := renderBar(int(m.stats.InputLoudness), loudnessScale, 10)

	clip := "never"
	if m.stats.TimeSinceLastClip >= 0 {
		clip = fmt.Sprintf("%.1fs ago", m.stats.TimeSinceLastClip)
	}

	return fmt.Sprintf("│                                                      │\n"+
		"│ Mic:    [%s] %5.0f%-6s%-22s │\n"+
		"│ Clip:   %-45s │\n"+
		"│ Sent:   %-8d seq %-5d ring %6.1fms%-13s │\n",
		level, m.stats.InputLoudness, muteIcon, "",
		clip,
		m.stats.PacketsSent, m.stats.Sequence, m.stats.InputRingMsecs, "")
}

func (m Model) renderOutput() string {
	j := m.stats.Jitter
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Jitter: desired %-3d available %-3d starves %-8d │
│ Lost: %-6d Late: %-6d Dropped: %-15d │
│ Output: %-2d frames, %6.1fms unplayed, grown %-3d     │
`, j.DesiredFrames, j.FramesAvailable, j.Starves,
		j.LostPackets, j.LatePackets, j.FramesDropped,
		m.stats.OutputBufferFrames, m.stats.OutputMsecs, m.stats.BufferGrowths)
}

func (m Model) renderFlags() string {
	return fmt.Sprintf(`│ Gate:%-3s Echo:%-3s ToServer:%-3s Inject:%-3s Reverb:%-3s │
│ Reverb source: %-38s │
`, onOff(m.stats.NoiseGate), onOff(m.stats.EchoLocally), onOff(m.stats.EchoToServer),
		onOff(m.stats.SourceInject), onOff(m.stats.ClientReverb), m.stats.Reverb)
}

func (m Model) renderHelp() string {
	s := ""
	if m.lastError != "" {
		s += fmt.Sprintf("│ Error: %-46s │\n", truncate(m.lastError, 46))
	}
	return s + `│ m:Mute e:Echo s:ToServer i:Inject g:Gate r:Reverb    │
│ x:Mute area  d:Debug  q:Quit                         │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Goroutines: %-38d │
│   Memory: %6.1f MB alloc, %6.1f MB sys%-15s │
│   Unfulfilled reads: %-31d │
`, m.goroutines,
		float64(m.memAlloc)/(1024*1024), float64(m.memSys)/(1024*1024), "",
		m.stats.UnfulfilledReads)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.sendQuit()
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	case "m":
		m.stats.Muted = !m.stats.Muted
		m.sendAction(ActionToggleMute)
	case "e":
		m.stats.EchoLocally = !m.stats.EchoLocally
		m.sendAction(ActionToggleEchoLocally)
	case "s":
		m.stats.EchoToServer = !m.stats.EchoToServer
		m.sendAction(ActionToggleEchoToServer)
	case "i":
		m.stats.SourceInject = !m.stats.SourceInject
		m.sendAction(ActionToggleSourceInject)
	case "g":
		m.stats.NoiseGate = !m.stats.NoiseGate
		m.sendAction(ActionToggleNoiseGate)
	case "r":
		m.stats.ClientReverb = !m.stats.ClientReverb
		m.sendAction(ActionToggleReverb)
	case "x":
		m.sendAction(ActionMuteEnvironment)
	}

	return m, nil
}

// sendAction never blocks the UI; actions are dropped when the app lags
func (m Model) sendAction(a Action) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Actions <- a:
	default:
	}
}

func (m Model) sendQuit() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Quit <- QuitMsg{}:
	default:
	}
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.MixerName != "" {
		m.mixerName = msg.MixerName
	}
	if msg.Voice != nil {
		m.stats = *msg.Voice
		m.hasStats = true
	}
	if msg.Error != nil {
		m.lastError = *msg.Error
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
		m.memSys = msg.MemSys
	}
}

// StatusMsg updates TUI state. Nil and zero fields leave the current value.
type StatusMsg struct {
	Connected *bool
	MixerName string
	Voice     *voice.Stats
	// Error replaces the shown error; an empty string clears it
	Error *string

	Goroutines int
	MemAlloc   uint64
	MemSys     uint64
}

// loudnessScale maps mean absolute sample values onto the level bar
const loudnessScale = 4096

func renderBar(value, max, width int) string {
	if value > max {
		value = max
	}
	if value < 0 {
		value = 0
	}
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}

func formatName(rate, channels int) string {
	if rate == 0 {
		return ""
	}
	return fmt.Sprintf("%dHz %s", rate, channelName(channels))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
