package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Mixer.Discovery)
	assert.Equal(t, "/voice", cfg.Mixer.Path)
	assert.Equal(t, "portaudio", cfg.Audio.Backend)
	assert.True(t, cfg.Audio.NoiseGate)
	assert.Equal(t, SourceTone, cfg.Audio.Source)
	assert.Equal(t, voice.DefaultSourceGain, cfg.Audio.SourceGain)
	assert.Equal(t, jitter.DefaultSettings(), cfg.Jitter)
	assert.Equal(t, voice.DefaultOutputBufferFrames, cfg.Output.BufferSizeFrames)
	assert.True(t, cfg.Output.StarveDetectionEnabled)
	assert.Equal(t, 10000, cfg.Output.StarveDetectionPeriodMs)
	assert.Equal(t, 3, cfg.Output.StarveDetectionThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
mixer:
  address: "10.0.0.5:8930"
audio:
  echo_locally: true
jitter:
  static_desired_jitter_buffer_frames: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:8930", cfg.Mixer.Address)
	assert.True(t, cfg.Audio.EchoLocally)
	assert.True(t, cfg.Audio.NoiseGate)
	assert.True(t, cfg.Jitter.Dynamic)
	assert.True(t, cfg.Jitter.RepetitionWithFade)
	assert.Equal(t, 4, cfg.Jitter.StaticDesiredFrames)
	assert.Equal(t, jitter.DefaultMaxFramesOverDesired, cfg.Jitter.MaxFramesOverDesired)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("VOICE_TEST_MIXER", "mixer.local:9000")
	path := writeConfig(t, `
mixer:
  address: "${VOICE_TEST_MIXER}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mixer.local:9000", cfg.Mixer.Address)
}

func TestLoadExplicitFalse(t *testing.T) {
	path := writeConfig(t, `
audio:
  noise_gate: false
output:
  starve_detection_enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Audio.NoiseGate)
	assert.False(t, cfg.Output.StarveDetectionEnabled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "mixer: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "audio:\n  backend: alsa\n"))
	assert.ErrorContains(t, err, "audio.backend")

	_, err = Load(writeConfig(t, "audio:\n  source: square\n"))
	assert.ErrorContains(t, err, "audio.source")

	_, err = Load(writeConfig(t, "mixer:\n  discovery_timeout: soon\n"))
	assert.ErrorContains(t, err, "discovery_timeout")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Audio.InputDevice = "USB Mic"
	cfg.Output.BufferSizeFrames = 14
	cfg.Jitter.Dynamic = false

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestVoiceOptions(t *testing.T) {
	cfg := Default()
	cfg.Audio.OutputDevice = "Headphones"
	cfg.Audio.Source = SourcePinkNoise
	cfg.Audio.SourceInject = true
	cfg.Audio.InputGainEnabled = true
	cfg.Audio.InputGain = 2
	cfg.Output.StarveDetectionPeriodMs = 5000

	opts := cfg.VoiceOptions()
	assert.Equal(t, "Headphones", opts.OutputDevice)
	assert.Equal(t, voice.SourcePinkNoise, opts.Source)
	assert.True(t, opts.SourceInject)
	assert.True(t, opts.InputGainEnabled)
	assert.Equal(t, 2.0, opts.InputGain)
	assert.True(t, opts.NoiseGate)
	assert.Equal(t, 5*time.Second, opts.Settings.Output.StarveDetectionPeriod)
}

func TestApplyVoiceSettings(t *testing.T) {
	cfg := Default()
	s := voice.DefaultSettings()
	s.Output.BufferSizeFrames = 12
	s.Output.StarveDetectionPeriod = 2 * time.Second
	s.Jitter.StaticDesiredFrames = 6

	cfg.ApplyVoiceSettings(s)

	assert.Equal(t, 12, cfg.Output.BufferSizeFrames)
	assert.Equal(t, 2000, cfg.Output.StarveDetectionPeriodMs)
	assert.Equal(t, 6, cfg.Jitter.StaticDesiredFrames)
	assert.Equal(t, s, cfg.VoiceSettings())
}

func TestMixerEnvironment(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.MixerEnvironment())

	cfg.Mixer.Reverb = true
	cfg.Mixer.ReverbT60 = 2.5
	cfg.Mixer.WetLevel = -6
	env := cfg.MixerEnvironment()
	require.NotNil(t, env)
	assert.True(t, env.HasReverb)
	assert.Equal(t, float32(2.5), env.ReverbTime)
}
