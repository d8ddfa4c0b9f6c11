// ABOUTME: Voice client application orchestration
// ABOUTME: Connects the voice engine to a mixer, the TUI and the saved configuration
package app

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/ui"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/discovery"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultReconnectDelay is the wait between mixer connection attempts
	DefaultReconnectDelay = 2 * time.Second

	connectTimeout = 5 * time.Second
	goodbyeReason  = "shutdown"
)

// Config holds application configuration
type Config struct {
	Settings *config.Config
	// ConfigPath receives the session settings on Stop; empty disables saving
	ConfigPath string
	UseTUI     bool

	ReconnectDelay time.Duration
}

// App runs one voice client against a mixer
type App struct {
	config   Config
	provider device.Provider
	voice    *voice.Client
	clientID string

	controls *ui.Controls
	tuiProg  *tea.Program

	mu        sync.Mutex
	conn      *protocol.Client
	mixerName string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the application around provider
func New(config Config, provider device.Provider) *App {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		config:   config,
		provider: provider,
		voice:    voice.NewClient(provider, nil, config.Settings.VoiceOptions()),
		clientID: uuid.New().String(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Voice returns the audio engine
func (a *App) Voice() *voice.Client {
	return a.voice
}

// Start opens the audio devices and begins connecting to the mixer. Missing
// devices are logged and leave that direction inactive.
func (a *App) Start() error {
	if err := a.voice.Start(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "App.Start",
			"error":    err.Error(),
		}).Warn("Voice client started with missing devices")
	}

	a.voice.OnDevicesChanged(func(inputs, outputs []string) {
		logrus.WithFields(logrus.Fields{
			"inputs":  inputs,
			"outputs": outputs,
		}).Info("Audio devices changed")
	})

	if a.config.UseTUI {
		a.controls = ui.NewControls()
		prog, err := ui.Run(a.controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		a.tuiProg = prog
		go func() {
			if _, err := prog.Run(); err != nil {
				logrus.WithError(err).Error("TUI exited")
			}
		}()

		a.goRun(a.handleControls)
	}

	a.goRun(func() { a.voice.Run(a.ctx) })
	a.goRun(a.connectionLoop)
	a.goRun(a.statsLoop)

	return nil
}

// Quit is closed when the user quits from the TUI; nil without a TUI
func (a *App) Quit() <-chan ui.QuitMsg {
	if a.controls == nil {
		return nil
	}
	return a.controls.Quit
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// connectionLoop keeps one mixer session alive until the app stops
func (a *App) connectionLoop() {
	for {
		conn, err := a.connect()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "App.connectionLoop",
				"error":    err.Error(),
			}).Warn("Mixer connection failed")
		} else {
			a.pumpPackets(conn)
			a.disconnected(conn)
		}

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(a.config.ReconnectDelay):
		}
	}
}

// resolveMixer returns the configured address or the first mixer found via mDNS
func (a *App) resolveMixer() (addr, path string, err error) {
	cfg := a.config.Settings.Mixer
	if cfg.Address != "" {
		return cfg.Address, cfg.Path, nil
	}
	if !cfg.Discovery {
		return "", "", fmt.Errorf("no mixer address and discovery disabled")
	}

	logrus.WithField("function", "App.resolveMixer").Info("Searching for mixers")
	server, err := discovery.Discover(a.ctx, a.config.Settings.DiscoveryTimeout())
	if err != nil {
		return "", "", err
	}
	if server == nil {
		return "", "", fmt.Errorf("no mixer found")
	}
	path = server.Path
	if path == "" {
		path = cfg.Path
	}
	logrus.WithFields(logrus.Fields{
		"name": server.Name,
		"addr": server.Addr(),
	}).Info("Discovered mixer")
	return server.Addr(), path, nil
}

func (a *App) connect() (*protocol.Client, error) {
	addr, path, err := a.resolveMixer()
	if err != nil {
		return nil, err
	}

	stats := a.voice.Stats()
	channels := 1
	if stats.StereoInput {
		channels = 2
	}

	conn := protocol.NewClient(protocol.Config{
		ServerAddr: addr,
		Path:       path,
		ClientID:   a.clientID,
		Name:       a.config.Settings.Mixer.ClientName,
		Version:    protocol.Version,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		Format: protocol.AudioFormat{
			Codec:        "pcm",
			Channels:     channels,
			SampleRate:   audio.NetworkSampleRate,
			BitDepth:     16,
			FrameSamples: audio.NetworkFrameSamplesPerChannel,
		},
		EchoToServer: stats.EchoToServer,
	})

	ctx, cancel := context.WithTimeout(a.ctx, connectTimeout)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	name := conn.Server().Name
	if name == "" {
		name = addr
	}

	a.voice.AudioMixerKilled()
	a.voice.SetTransport(conn)

	a.mu.Lock()
	a.conn = conn
	a.mixerName = name
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "App.connect",
		"mixer":    name,
		"addr":     addr,
	}).Info("Connected to mixer")

	connected := true
	a.updateTUI(ui.StatusMsg{Connected: &connected, MixerName: name})

	a.playConnectSound()
	return conn, nil
}

// pumpPackets feeds mixer packets to the voice client until the session ends
func (a *App) pumpPackets(conn *protocol.Client) {
	for {
		select {
		case data := <-conn.Packets:
			if err := a.voice.HandlePacket(data); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "App.pumpPackets",
					"error":    err.Error(),
				}).Debug("Dropped mixer packet")
			}
		case <-conn.Done():
			return
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) disconnected(conn *protocol.Client) {
	a.voice.SetTransport(nil)
	a.voice.AudioMixerKilled()

	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()

	if a.ctx.Err() != nil {
		return
	}
	conn.Close()

	logrus.WithField("function", "App.disconnected").Warn("Mixer connection lost")
	connected := false
	a.updateTUI(ui.StatusMsg{Connected: &connected})
}

// Connected reports whether a mixer session is active
func (a *App) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil && a.conn.IsConnected()
}

// MixerName returns the name of the current or last mixer
func (a *App) MixerName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mixerName
}

// playConnectSound plays the configured clip locally; failures only log
func (a *App) playConnectSound() {
	path := a.config.Settings.Audio.ConnectSound
	if path == "" {
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"function": "App.playConnectSound",
		"path":     path,
	})

	clip, err := decode.LoadMP3(path)
	if err != nil {
		log.WithError(err).Warn("Unable to load connect sound")
		return
	}
	network, err := clip.ToNetwork()
	if err != nil {
		log.WithError(err).Warn("Unable to convert connect sound")
		return
	}
	injection, err := a.voice.OutputLocalInjector(network.Samples, network.Format.Channels == 2, a.config.Settings.Audio.ConnectVolume)
	if err != nil {
		log.WithError(err).Warn("Unable to play connect sound")
		return
	}

	a.goRun(func() {
		defer injection.Close()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for injection.Remaining() > 0 {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}

// handleControls applies TUI actions
func (a *App) handleControls() {
	for {
		select {
		case action := <-a.controls.Actions:
			err := a.applyAction(action)
			msg := ""
			if err != nil {
				msg = err.Error()
				logrus.WithFields(logrus.Fields{
					"function": "App.handleControls",
					"action":   action.String(),
					"error":    msg,
				}).Warn("Action failed")
			}
			a.updateTUI(ui.StatusMsg{Error: &msg})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) applyAction(action ui.Action) error {
	stats := a.voice.Stats()
	switch action {
	case ui.ActionToggleMute:
		a.voice.ToggleMute()
	case ui.ActionToggleEchoLocally:
		a.voice.SetEchoLocally(!stats.EchoLocally)
	case ui.ActionToggleEchoToServer:
		a.voice.SetEchoToServer(!stats.EchoToServer)
	case ui.ActionToggleSourceInject:
		a.voice.ToggleAudioSourceInject()
	case ui.ActionToggleNoiseGate:
		a.voice.SetNoiseGateEnabled(!stats.NoiseGate)
	case ui.ActionToggleReverb:
		a.voice.SetClientReverb(!stats.ClientReverb)
	case ui.ActionMuteEnvironment:
		return a.voice.SendMuteEnvironmentPacket()
	default:
		return fmt.Errorf("unknown action %d", action)
	}
	return nil
}

func (a *App) updateTUI(msg ui.StatusMsg) {
	if a.tuiProg != nil {
		a.tuiProg.Send(msg)
	}
}

// statsLoop periodically publishes voice stats to the TUI, or to the debug log without one
func (a *App) statsLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// Runtime stats are slower to collect
	runtimeStatsTicker := time.NewTicker(2 * time.Second)
	defer runtimeStatsTicker.Stop()

	var lastGoroutines int
	var lastMemAlloc, lastMemSys uint64

	for {
		select {
		case <-a.ctx.Done():
			return

		case <-runtimeStatsTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			lastGoroutines = runtime.NumGoroutine()
			lastMemAlloc = m.Alloc
			lastMemSys = m.Sys

			if a.tuiProg == nil {
				stats := a.voice.Stats()
				logrus.WithFields(logrus.Fields{
					"loudness":      stats.InputLoudness,
					"packets_sent":  stats.PacketsSent,
					"desired":       stats.Jitter.DesiredFrames,
					"available":     stats.Jitter.FramesAvailable,
					"starves":       stats.Jitter.Starves,
					"output_frames": stats.OutputBufferFrames,
				}).Debug("Voice stats")
			}

		case <-ticker.C:
			if a.tuiProg == nil {
				continue
			}
			stats := a.voice.Stats()
			a.updateTUI(ui.StatusMsg{
				Voice:      &stats,
				Goroutines: lastGoroutines,
				MemAlloc:   lastMemAlloc,
				MemSys:     lastMemSys,
			})
		}
	}
}

// Stop disconnects from the mixer, closes the devices and saves settings
func (a *App) Stop() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil && conn.IsConnected() {
		if err := conn.SendGoodbye(goodbyeReason); err != nil {
			logrus.WithError(err).Debug("Failed to send goodbye")
		}
	}

	a.cancel()
	if conn != nil {
		conn.Close()
	}
	a.wg.Wait()

	a.voice.Stop()

	var saveErr error
	if a.config.ConfigPath != "" {
		a.config.Settings.ApplyVoiceSettings(a.voice.SaveSettings())
		saveErr = a.config.Settings.Save(a.config.ConfigPath)
	}

	if a.tuiProg != nil {
		a.tuiProg.Quit()
	}
	return saveErr
}
