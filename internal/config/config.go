// ABOUTME: YAML configuration for the voice client and loopback mixer
// ABOUTME: Loads with environment expansion, fills defaults and saves session settings back
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	"gopkg.in/yaml.v3"
)

// Source names accepted by audio.source
const (
	SourceTone      = "tone"
	SourcePinkNoise = "pink_noise"
)

type Config struct {
	Mixer  MixerConfig     `yaml:"mixer"`
	Audio  AudioConfig     `yaml:"audio"`
	Jitter jitter.Settings `yaml:"jitter"`
	Output OutputConfig    `yaml:"output"`
	Log    LogConfig       `yaml:"log"`
	UI     UIConfig        `yaml:"ui"`
}

type MixerConfig struct {
	// Address is host:port of the mixer; empty means discover it
	Address          string `yaml:"address"`
	Path             string `yaml:"path"`
	Discovery        bool   `yaml:"discovery"`
	DiscoveryTimeout string `yaml:"discovery_timeout"`
	ClientName       string `yaml:"client_name"`

	// Listen settings for the loopback mixer binary
	Port      int     `yaml:"port"`
	Name      string  `yaml:"name"`
	Advertise bool    `yaml:"advertise"`
	Reverb    bool    `yaml:"reverb"`
	ReverbT60 float32 `yaml:"reverb_time"`
	WetLevel  float32 `yaml:"wet_level"`
}

type AudioConfig struct {
	// Backend is "portaudio" or "oto"
	Backend       string `yaml:"backend"`
	OtoSampleRate int    `yaml:"oto_sample_rate"`
	OtoChannels   int    `yaml:"oto_channels"`

	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`

	StereoInput  bool `yaml:"stereo_input"`
	NoiseGate    bool `yaml:"noise_gate"`
	EchoLocally  bool `yaml:"echo_locally"`
	EchoToServer bool `yaml:"echo_to_server"`

	SourceInject     bool    `yaml:"source_inject"`
	Source           string  `yaml:"source"`
	SourceGain       float64 `yaml:"source_gain"`
	InputGainEnabled bool    `yaml:"input_gain_enabled"`
	InputGain        float64 `yaml:"input_gain"`

	ClientReverb bool           `yaml:"client_reverb"`
	Reverb       reverb.Options `yaml:"reverb"`

	// ConnectSound is an MP3 played locally when a mixer session starts
	ConnectSound  string  `yaml:"connect_sound"`
	ConnectVolume float64 `yaml:"connect_volume"`
}

type OutputConfig struct {
	BufferSizeFrames         int  `yaml:"buffer_size_frames"`
	StarveDetectionEnabled   bool `yaml:"starve_detection_enabled"`
	StarveDetectionPeriodMs  int  `yaml:"starve_detection_period_ms"`
	StarveDetectionThreshold int  `yaml:"starve_detection_threshold"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type UIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration of a fresh install
func Default() *Config {
	opts := voice.DefaultOptions()
	settings := voice.DefaultSettings()

	cfg := &Config{
		Mixer: MixerConfig{
			Discovery: true,
			Advertise: true,
		},
		Audio: AudioConfig{
			NoiseGate:     opts.NoiseGate,
			Source:        SourceTone,
			SourceGain:    opts.SourceGain,
			InputGain:     opts.InputGain,
			Reverb:        opts.Reverb,
			ConnectVolume: 1.0,
		},
		Jitter: settings.Jitter,
		Output: OutputConfig{
			BufferSizeFrames:         settings.Output.BufferSizeFrames,
			StarveDetectionEnabled:   settings.Output.StarveDetectionEnabled,
			StarveDetectionPeriodMs:  int(settings.Output.StarveDetectionPeriod / time.Millisecond),
			StarveDetectionThreshold: settings.Output.StarveDetectionThreshold,
		},
		UI: UIConfig{Enabled: true},
	}
	cfg.setDefaults()
	return cfg
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Mixer.Path == "" {
		c.Mixer.Path = protocol.DefaultPath
	}
	if c.Mixer.DiscoveryTimeout == "" {
		c.Mixer.DiscoveryTimeout = "10s"
	}
	if c.Mixer.ClientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		c.Mixer.ClientName = hostname + "-voice"
	}
	if c.Mixer.Port == 0 {
		c.Mixer.Port = 8930
	}
	if c.Mixer.Name == "" {
		c.Mixer.Name = "Loopback Mixer"
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = "portaudio"
	}
	if c.Audio.OtoSampleRate == 0 {
		c.Audio.OtoSampleRate = 48000
	}
	if c.Audio.OtoChannels == 0 {
		c.Audio.OtoChannels = 2
	}
	if c.Audio.Source == "" {
		c.Audio.Source = SourceTone
	}
	if c.Output.StarveDetectionPeriodMs == 0 {
		c.Output.StarveDetectionPeriodMs = int(voice.DefaultStarveDetectionPeriod / time.Millisecond)
	}
	if c.Output.StarveDetectionThreshold == 0 {
		c.Output.StarveDetectionThreshold = voice.DefaultStarveDetectionThreshold
	}
	if c.Output.BufferSizeFrames == 0 {
		c.Output.BufferSizeFrames = voice.DefaultOutputBufferFrames
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.File == "" {
		c.Log.File = "resonate-voice.log"
	}
}

// Validate rejects values the client cannot run with
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Mixer.DiscoveryTimeout); err != nil {
		return fmt.Errorf("invalid mixer.discovery_timeout %q: %w", c.Mixer.DiscoveryTimeout, err)
	}
	switch c.Audio.Backend {
	case "portaudio", "oto":
	default:
		return fmt.Errorf("invalid audio.backend %q", c.Audio.Backend)
	}
	switch c.Audio.Source {
	case SourceTone, SourcePinkNoise:
	default:
		return fmt.Errorf("invalid audio.source %q", c.Audio.Source)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	return nil
}

// DiscoveryTimeout returns the parsed mixer discovery timeout
func (c *Config) DiscoveryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Mixer.DiscoveryTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// VoiceOptions builds the voice client options
func (c *Config) VoiceOptions() voice.Options {
	opts := voice.DefaultOptions()
	opts.InputDevice = c.Audio.InputDevice
	opts.OutputDevice = c.Audio.OutputDevice
	opts.StereoInput = c.Audio.StereoInput
	opts.NoiseGate = c.Audio.NoiseGate
	opts.EchoLocally = c.Audio.EchoLocally
	opts.EchoToServer = c.Audio.EchoToServer
	opts.SourceInject = c.Audio.SourceInject
	opts.Source = voice.SourceTone
	if c.Audio.Source == SourcePinkNoise {
		opts.Source = voice.SourcePinkNoise
	}
	opts.SourceGain = c.Audio.SourceGain
	opts.InputGainEnabled = c.Audio.InputGainEnabled
	opts.InputGain = c.Audio.InputGain
	opts.ClientReverb = c.Audio.ClientReverb
	opts.Reverb = c.Audio.Reverb
	opts.Settings = c.VoiceSettings()
	return opts
}

// VoiceSettings returns the persisted jitter and output settings
func (c *Config) VoiceSettings() voice.Settings {
	return voice.Settings{
		Jitter: c.Jitter,
		Output: voice.OutputSettings{
			BufferSizeFrames:         c.Output.BufferSizeFrames,
			StarveDetectionEnabled:   c.Output.StarveDetectionEnabled,
			StarveDetectionPeriod:    time.Duration(c.Output.StarveDetectionPeriodMs) * time.Millisecond,
			StarveDetectionThreshold: c.Output.StarveDetectionThreshold,
		},
	}
}

// ApplyVoiceSettings stores settings saved by the voice client
func (c *Config) ApplyVoiceSettings(s voice.Settings) {
	c.Jitter = s.Jitter
	c.Output = OutputConfig{
		BufferSizeFrames:         s.Output.BufferSizeFrames,
		StarveDetectionEnabled:   s.Output.StarveDetectionEnabled,
		StarveDetectionPeriodMs:  int(s.Output.StarveDetectionPeriod / time.Millisecond),
		StarveDetectionThreshold: s.Output.StarveDetectionThreshold,
	}
}

// MixerEnvironment returns the environment packet the loopback mixer sends,
// or nil when reverb is off
func (c *Config) MixerEnvironment() *protocol.Environment {
	if !c.Mixer.Reverb {
		return nil
	}
	return &protocol.Environment{
		HasReverb:  true,
		ReverbTime: c.Mixer.ReverbT60,
		WetLevel:   c.Mixer.WetLevel,
	}
}
