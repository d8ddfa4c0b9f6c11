// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it uses to drive the voice client
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Action is a user command from the TUI
type Action int

const (
	ActionToggleMute Action = iota
	ActionToggleEchoLocally
	ActionToggleEchoToServer
	ActionToggleSourceInject
	ActionToggleNoiseGate
	ActionToggleReverb
	ActionMuteEnvironment
)

func (a Action) String() string {
	switch a {
	case ActionToggleMute:
		return "toggle_mute"
	case ActionToggleEchoLocally:
		return "toggle_echo_locally"
	case ActionToggleEchoToServer:
		return "toggle_echo_to_server"
	case ActionToggleSourceInject:
		return "toggle_source_inject"
	case ActionToggleNoiseGate:
		return "toggle_noise_gate"
	case ActionToggleReverb:
		return "toggle_reverb"
	case ActionMuteEnvironment:
		return "mute_environment"
	default:
		return "unknown"
	}
}

// QuitMsg is sent when the user quits from the TUI
type QuitMsg struct{}

// Controls holds channels for user commands
type Controls struct {
	Actions chan Action
	Quit    chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Actions: make(chan Action, 10),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Controls) Model {
	return Model{
		controls: ctrl,
	}
}

// Run creates the TUI program; the caller runs it
func Run(ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
