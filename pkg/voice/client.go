// ABOUTME: Voice client connecting audio devices to a mixer session
// ABOUTME: Owns formats, resamplers, effects, the received stream and session state
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/effects"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// CallbackAcceleratorRatio shrinks capture buffers so callbacks arrive
	// faster than network frames
	CallbackAcceleratorRatio = 2.0

	// InputRingFrames is the capture ring capacity in network frames
	InputRingFrames = 10

	// LoopbackRingFrames is the local echo ring capacity in output frames
	LoopbackRingFrames = 10

	// DefaultNotifyInterval is how often Run checks for output starvation
	DefaultNotifyInterval = time.Second

	// DefaultSourceGain is the post gain applied to injected sources
	DefaultSourceGain = 0.25
)

// Transport sends packets to the mixer
type Transport interface {
	Send(packet []byte) error
	IsConnected() bool
}

// PoseFunc reports the listener's head position and orientation
type PoseFunc func() (protocol.Vec3, protocol.Quat)

// Source selects the injected synthetic source
type Source int

const (
	SourceTone Source = iota
	SourcePinkNoise
)

// Options configure a Client
type Options struct {
	InputDevice  string
	OutputDevice string

	StereoInput  bool
	NoiseGate    bool
	EchoLocally  bool
	EchoToServer bool

	SourceInject     bool
	Source           Source
	SourceGain       float64
	InputGainEnabled bool
	InputGain        float64

	ClientReverb bool
	Reverb       reverb.Options

	Settings Settings

	Pose          PoseFunc
	Now           func() time.Time
	ReverbFactory reverb.Factory
	NoiseSeed     int64
}

// DefaultOptions returns the configuration of a fresh install
func DefaultOptions() Options {
	return Options{
		NoiseGate:  true,
		Source:     SourceTone,
		SourceGain: DefaultSourceGain,
		InputGain:  1.0,
		Reverb:     reverb.DefaultOptions(),
		Settings:   DefaultSettings(),
		NoiseSeed:  1,
	}
}

type inputPath struct {
	dev           device.Info
	stream        device.Stream
	callbackBytes int
	samples       []int16
}

type outputPath struct {
	dev             device.Info
	stream          device.Stream
	frameSize       int
	loopback        device.Stream
	loopbackRing    *device.Ring
	loopbackStarted bool
}

// Client is the audio side of a voice session. Device callbacks, inbound
// packets and reconfiguration are serialized on one mutex; the render
// reader only touches the received stream.
type Client struct {
	provider device.Provider
	pose     PoseFunc
	now      func() time.Time

	// switchMu serializes device reconfiguration
	switchMu sync.Mutex
	mu       sync.Mutex

	transport Transport

	desiredInput  audio.Format
	desiredOutput audio.Format
	inputFormat   audio.Format
	outputFormat  audio.Format

	inputDeviceName  string
	outputDeviceName string
	preferredInput   string
	preferredOutput  string

	in  *inputPath
	out *outputPath

	inputRing         *device.Ring
	inputScratch      []int16
	networkFrame      []int16
	inputToNetwork    *resample.Context
	loopbackResampler *resample.Context
	loopbackReady     bool
	loopbackFailed    bool

	gate       *effects.NoiseGate
	tone       *effects.ToneGenerator
	noise      *effects.PinkNoiseGenerator
	sourceGain *effects.Gain
	inputGain  *effects.Gain
	reverb     *reverb.Stage

	stream   *jitter.Stream
	renderer *Renderer
	watcher  *device.Watcher

	muted            bool
	stereoInput      bool
	noiseGateEnabled bool
	echoLocally      bool
	echoToServer     bool
	sourceInject     bool
	toneSource       bool
	noiseSource      bool
	inputGainEnabled bool
	clientReverb     bool
	zone             protocol.Environment

	initialSourceGain float64
	initialInputGain  float64

	seq               uint16
	lastLoudness      float32
	timeSinceLastClip float32

	outputBufferFrames int
	outputSettings     OutputSettings
	starve             starveDetector

	packetsSent   int
	bufferGrowths int

	onDevicesChanged  func(inputs, outputs []string)
	onDevicesChangeMu sync.Mutex
}

// NewClient creates a stopped client. transport may be nil until a mixer
// connection exists.
func NewClient(provider device.Provider, transport Transport, opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Pose == nil {
		opts.Pose = func() (protocol.Vec3, protocol.Quat) { return protocol.Vec3{}, protocol.IdentityQuat }
	}

	sourceGain, err := effects.NewGain(opts.SourceGain)
	if err != nil {
		sourceGain, _ = effects.NewGain(DefaultSourceGain)
	}
	inputGain, err := effects.NewGain(opts.InputGain)
	if err != nil {
		inputGain, _ = effects.NewGain(1.0)
	}

	settings := opts.Settings
	if settings.Output.StarveDetectionPeriod <= 0 {
		settings.Output.StarveDetectionPeriod = DefaultStarveDetectionPeriod
	}
	if settings.Output.StarveDetectionThreshold <= 0 {
		settings.Output.StarveDetectionThreshold = DefaultStarveDetectionThreshold
	}
	if settings.Output.BufferSizeFrames <= 0 {
		settings.Output.BufferSizeFrames = DefaultOutputBufferFrames
	}

	stream := jitter.NewStream(jitter.DefaultCapacityFrames, audio.NetworkFrameSamplesStereo, settings.Jitter, opts.Now)

	c := &Client{
		provider:  provider,
		pose:      opts.Pose,
		now:       opts.Now,
		transport: transport,

		desiredInput:  audio.NetworkFormat(1),
		desiredOutput: audio.NetworkFormat(2),

		preferredInput:  opts.InputDevice,
		preferredOutput: opts.OutputDevice,

		inputRing:    device.NewRing(0),
		networkFrame: make([]int16, audio.NetworkFrameSamplesStereo),

		gate:       effects.NewNoiseGate(),
		tone:       effects.NewToneGenerator(audio.NetworkSampleRate),
		noise:      effects.NewPinkNoiseGenerator(opts.NoiseSeed),
		sourceGain: sourceGain,
		inputGain:  inputGain,
		reverb:     reverb.NewStage(audio.NetworkSampleRate, opts.ReverbFactory),

		stream: stream,

		stereoInput:      opts.StereoInput,
		noiseGateEnabled: opts.NoiseGate,
		echoLocally:      opts.EchoLocally,
		echoToServer:     opts.EchoToServer,
		sourceInject:     opts.SourceInject,
		toneSource:       opts.Source == SourceTone,
		noiseSource:      opts.Source == SourcePinkNoise,
		inputGainEnabled: opts.InputGainEnabled,
		clientReverb:     opts.ClientReverb,

		initialSourceGain: sourceGain.Value(),
		initialInputGain:  inputGain.Value(),

		timeSinceLastClip:  -1,
		outputBufferFrames: clampOutputFrames(settings.Output.BufferSizeFrames),
		outputSettings:     settings.Output,
	}
	if opts.StereoInput {
		c.desiredInput = audio.NetworkFormat(2)
	}
	c.reverb.SetScriptOptions(opts.Reverb)
	c.renderer = newRenderer(stream)
	c.watcher = device.NewWatcher(provider, c.devicesChanged)
	return c
}

// Start opens the configured (or default) input and output devices. A
// direction that fails is left inactive; the joined errors are returned.
func (c *Client) Start() error {
	c.mu.Lock()
	inName, outName := c.preferredInput, c.preferredOutput
	c.mu.Unlock()

	inErr := c.SwitchInputDevice(inName)
	if inErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.Start",
			"error":    inErr.Error(),
		}).Warn("Unable to set up audio input")
	}
	outErr := c.SwitchOutputDevice(outName)
	if outErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.Start",
			"error":    outErr.Error(),
		}).Warn("Unable to set up audio output")
	}

	c.mu.Lock()
	c.sourceGain.SetGain(c.initialSourceGain)
	c.inputGain.SetGain(c.initialInputGain)
	c.mu.Unlock()

	c.watcher.Check()
	return joinErrors(inErr, outErr)
}

// Stop tears down both directions and releases the resamplers
func (c *Client) Stop() {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.detachInput()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownOutputLocked()
	c.loopbackResampler = nil
	c.loopbackReady = false
	c.loopbackFailed = false

	logrus.WithField("function", "Client.Stop").Info("Voice client stopped")
}

// Reset clears the received stream, the generators and the gains
func (c *Client) Reset() {
	c.stream.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tone.Reset()
	c.noise.Reset()
	c.gate.Reset()
	c.sourceGain.SetGain(c.initialSourceGain)
	c.inputGain.SetGain(c.initialInputGain)
	c.packetsSent = 0
}

// AudioMixerKilled restarts the outgoing sequence for a new mixer session
func (c *Client) AudioMixerKilled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
	c.packetsSent = 0
	c.bufferGrowths = 0

	logrus.WithField("function", "Client.AudioMixerKilled").Info("Mixer session reset")
}

// SetTransport replaces the mixer connection. A nil transport means no mixer.
func (c *Client) SetTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
}

// OnDevicesChanged registers a callback for device list changes
func (c *Client) OnDevicesChanged(fn func(inputs, outputs []string)) {
	c.onDevicesChangeMu.Lock()
	defer c.onDevicesChangeMu.Unlock()
	c.onDevicesChanged = fn
}

func (c *Client) devicesChanged(inputs, outputs []string) {
	c.onDevicesChangeMu.Lock()
	fn := c.onDevicesChanged
	c.onDevicesChangeMu.Unlock()
	if fn != nil {
		fn(inputs, outputs)
	}
}

// CheckDevices compares device lists with the previous poll and reports a change
func (c *Client) CheckDevices() bool {
	return c.watcher.Check()
}

// Run drives starvation detection and device polling until ctx is done
func (c *Client) Run(ctx context.Context) {
	notify := time.NewTicker(DefaultNotifyInterval)
	defer notify.Stop()
	poll := time.NewTicker(device.DefaultPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-notify.C:
			c.OutputNotify()
		case <-poll.C:
			c.CheckDevices()
		}
	}
}

// ToggleMute flips the mute state and returns it
func (c *Client) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	return c.muted
}

// SetMuted sets the mute state
func (c *Client) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
}

// IsMuted reports the mute state
func (c *Client) IsMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// ToggleAudioSourceInject flips synthetic source injection and returns it
func (c *Client) ToggleAudioSourceInject() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceInject = !c.sourceInject
	return c.sourceInject
}

// SelectAudioSourcePinkNoise injects pink noise
func (c *Client) SelectAudioSourcePinkNoise() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noiseSource = true
	c.toneSource = false
}

// SelectAudioSourceSine440 injects a 440Hz tone
func (c *Client) SelectAudioSourceSine440() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toneSource = true
	c.noiseSource = false
}

func (c *Client) SetNoiseGateEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noiseGateEnabled = enabled
}

func (c *Client) SetEchoLocally(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.echoLocally = enabled
}

func (c *Client) SetEchoToServer(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.echoToServer = enabled
}

// SetClientReverb enables reverb requested by the local user
func (c *Client) SetClientReverb(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientReverb = enabled
}

// SetReverbOptions stores script reverb options. They take effect
// immediately unless a server zone currently governs the reverb.
func (c *Client) SetReverbOptions(opts reverb.Options) {
	c.reverb.SetScriptOptions(opts)
}

// ReverbProvenance reports which configuration governs the reverb
func (c *Client) ReverbProvenance() reverb.Provenance {
	return c.reverb.Active()
}

// SetIsStereoInput changes the desired input channel count and reopens
// the input device when it changed.
func (c *Client) SetIsStereoInput(stereo bool) error {
	c.mu.Lock()
	if stereo == c.stereoInput {
		c.mu.Unlock()
		return nil
	}
	c.stereoInput = stereo
	if stereo {
		c.desiredInput = c.desiredInput.WithChannels(2)
	} else {
		c.desiredInput = c.desiredInput.WithChannels(1)
	}
	name, active := c.inputDeviceName, c.in != nil
	c.mu.Unlock()

	if !active {
		return nil
	}
	return c.SwitchInputDevice(name)
}

// refreshReverbLocked makes the zone or script provenance authoritative
// according to the latest environment packet
func (c *Client) refreshReverbLocked() {
	c.reverb.UpdateZone(c.zone.HasReverb, c.zone.ReverbTime, c.zone.WetLevel)
}

func (c *Client) reverbActiveLocked() bool {
	return c.clientReverb || c.zone.HasReverb
}

func joinErrors(errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &multiError{errs: kept}
	}
}

type multiError struct {
	errs []error
}

func (m *multiError) Error() string {
	s := m.errs[0].Error()
	for _, err := range m.errs[1:] {
		s += "; " + err.Error()
	}
	return s
}

func (m *multiError) Unwrap() []error {
	return m.errs
}
