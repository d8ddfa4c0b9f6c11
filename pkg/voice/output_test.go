package voice

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSamples(t *testing.T, c *Client, n int) []int16 {
	t.Helper()
	buf := make([]byte, n*audio.SampleBytes)
	got, err := c.renderer.Read(buf)
	require.NoError(t, err)
	samples := make([]int16, got/audio.SampleBytes)
	audio.BytesToSamples(samples, buf[:got])
	return samples
}

func TestOutputFrameSize(t *testing.T) {
	assert.Equal(t, 512, outputFrameSize(audio.NetworkFormat(2)))
	assert.Equal(t, 1024, outputFrameSize(audio.NetworkFormat(2).WithSampleRate(48000)))
	assert.Equal(t, 940, outputFrameSize(audio.NetworkFormat(2).WithSampleRate(44100)))
	assert.Equal(t, 256, outputFrameSize(audio.NetworkFormat(1)))
}

func TestOutputOpensRenderAndLoopbackSinks(t *testing.T) {
	c, p, _ := newTestClient(t, nil)

	render, loopback := p.lastOutputs(t)
	assert.Equal(t, audio.NetworkFormat(2), render.format)
	assert.Equal(t, DefaultOutputBufferFrames*512*audio.SampleBytes, render.bufferBytes)
	assert.True(t, render.stream.started)
	assert.Same(t, c.renderer, render.src)
	assert.Equal(t, render.format, loopback.format)
	assert.Equal(t, "Speakers", c.OutputDeviceName())
}

func TestReceivedAudioIsRendered(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	require.NoError(t, c.HandlePacket(protocol.MixedAudio{Sequence: 0, Samples: constant(512, 700)}.Encode()))
	assert.Equal(t, constant(512, 700), readSamples(t, c, 512))

	require.NoError(t, c.HandlePacket(protocol.MixedSilentFrame{Sequence: 1, SampleCount: 512}.Encode()))
	assert.Equal(t, constant(512, 0), readSamples(t, c, 512))
	assert.Equal(t, 0, c.renderer.UnfulfilledReads())
}

func TestReceivedAudioResampledForDevice(t *testing.T) {
	c, _, _ := newTestClient(t, func(o *Options, p *fakeProvider) {
		p.outputs = []device.Info{{
			Name: "USB", IsDefault: true, MinChannels: 2, MaxChannels: 2, SampleRates: []int{48000},
		}}
	})
	assert.Equal(t, audio.NetworkFormat(2).WithSampleRate(48000), c.OutputFormat())

	var samples []int16
	for seq := uint16(0); seq < 20; seq++ {
		require.NoError(t, c.HandlePacket(protocol.MixedAudio{Sequence: seq, Samples: constant(512, 700)}.Encode()))
		samples = readSamples(t, c, 1024)
		require.Len(t, samples, 1024)
	}
	for i, s := range samples {
		assert.InDelta(t, 700, s, 15, "sample %d", i)
	}
}

func TestStartWithoutOutputDevice(t *testing.T) {
	p := newFakeProvider()
	p.outputs = nil
	c := NewClient(p, nil, DefaultOptions())
	defer c.Stop()

	err := c.Start()
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, "Mic", c.InputDeviceName(), "input still starts")
	assert.Equal(t, "", c.OutputDeviceName())

	require.NoError(t, c.HandlePacket(protocol.MixedAudio{Samples: constant(512, 700)}.Encode()))
	assert.Equal(t, 0, c.stream.SamplesAvailable(), "received audio needs an output")
}

func TestHandlePacketRejectsClientPackets(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	err := c.HandlePacket(protocol.MicrophoneAudio{Samples: []int16{1}}.Encode())
	assert.ErrorIs(t, err, protocol.ErrUnknownPacket)
	assert.Error(t, c.HandlePacket(nil))
}

func TestReceivedAudioReverb(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	c.SetClientReverb(true)

	require.NoError(t, c.HandlePacket(protocol.MixedAudio{Samples: constant(512, 700)}.Encode()))
	samples := readSamples(t, c, 2)
	assert.Equal(t, []int16{100, -100}, samples, "0dB wet level replaces the dry signal")
}

func TestEnvironmentSwitchesReverbProvenance(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	assert.Equal(t, reverb.ProvenanceScript, c.ReverbProvenance())

	env := protocol.Environment{HasReverb: true, ReverbTime: 2.5, WetLevel: -6}
	require.NoError(t, c.HandlePacket(env.Encode()))
	assert.Equal(t, reverb.ProvenanceZone, c.ReverbProvenance())
	assert.Equal(t, float32(2.5), c.reverb.Options().ReverbTime)

	c.SetReverbOptions(reverb.Options{ReverbTime: 9})
	assert.Equal(t, float32(2.5), c.reverb.Options().ReverbTime, "zone stays authoritative")

	require.NoError(t, c.HandlePacket(protocol.Environment{}.Encode()))
	assert.Equal(t, reverb.ProvenanceScript, c.ReverbProvenance())
	assert.Equal(t, float32(9), c.reverb.Options().ReverbTime)
}

func TestZoneReverbAppliesWithoutClientReverb(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	require.NoError(t, c.HandlePacket(protocol.Environment{HasReverb: true, ReverbTime: 1, WetLevel: 0}.Encode()))

	require.NoError(t, c.HandlePacket(protocol.MixedAudio{Samples: constant(512, 700)}.Encode()))
	assert.Equal(t, []int16{100, -100}, readSamples(t, c, 2))
}

func TestRendererFillsSilenceWhenEmpty(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	buf := []byte{1, 2, 3, 4}
	n, err := c.renderer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
	assert.Equal(t, 1, c.renderer.UnfulfilledReads())
	assert.Equal(t, 1, c.renderer.RecentUnfulfilledReads())
	assert.Equal(t, 0, c.renderer.RecentUnfulfilledReads())
}

func starvingClient(t *testing.T) (*Client, *fakeProvider, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(5000, 0)}
	c, p, _ := newTestClient(t, func(o *Options, p *fakeProvider) {
		o.Now = clock.now
	})
	return c, p, clock
}

func starve(c *Client, reads int) {
	buf := make([]byte, 64)
	for i := 0; i < reads; i++ {
		c.renderer.Read(buf)
	}
}

func TestStarvationGrowsOutputBuffer(t *testing.T) {
	c, p, clock := starvingClient(t)

	starve(c, 4)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames, c.OutputBufferSizeFrames(), "first check opens the window")

	starve(c, 4)
	clock.advance(time.Second)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames+1, c.OutputBufferSizeFrames())
	assert.Equal(t, 1, c.Stats().BufferGrowths)

	render, _ := p.lastOutputs(t)
	assert.Equal(t, (DefaultOutputBufferFrames+1)*512*audio.SampleBytes, render.bufferBytes)
	assert.Equal(t, "Speakers", render.dev.Name, "sink is recreated on the same device")
	assert.Len(t, p.opened, 4)
	assert.True(t, p.opened[0].stream.closed)
}

func TestStarvationAtThresholdDoesNotGrow(t *testing.T) {
	c, _, clock := starvingClient(t)
	starve(c, 1)
	c.OutputNotify()

	starve(c, 3)
	clock.advance(time.Second)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames, c.OutputBufferSizeFrames())
}

func TestStarvationWindowExpires(t *testing.T) {
	c, _, clock := starvingClient(t)
	starve(c, 1)
	c.OutputNotify()

	starve(c, 3)
	clock.advance(time.Second)
	c.OutputNotify()

	starve(c, 3)
	clock.advance(DefaultStarveDetectionPeriod)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames, c.OutputBufferSizeFrames(), "stale window restarts without counting")
}

func TestStarvationGrowthIsClamped(t *testing.T) {
	c, _, clock := starvingClient(t)
	c.SetOutputBufferSize(50)
	assert.Equal(t, MaxOutputBufferFrames, c.OutputBufferSizeFrames())

	starve(c, 1)
	c.OutputNotify()
	starve(c, 10)
	clock.advance(time.Second)
	c.OutputNotify()
	assert.Equal(t, MaxOutputBufferFrames, c.OutputBufferSizeFrames())
	assert.Equal(t, 0, c.Stats().BufferGrowths)

	c.SetOutputBufferSize(0)
	assert.Equal(t, MinOutputBufferFrames, c.OutputBufferSizeFrames())
}

func TestStarvationDetectionDisabled(t *testing.T) {
	c, _, clock := starvingClient(t)
	settings := c.SaveSettings()
	settings.Output.StarveDetectionEnabled = false
	c.LoadSettings(settings)

	starve(c, 1)
	c.OutputNotify()
	starve(c, 10)
	clock.advance(time.Second)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames, c.OutputBufferSizeFrames())
}

func TestSettingsRoundTrip(t *testing.T) {
	c, p, _ := newTestClient(t, nil)

	js := jitter.DefaultSettings()
	js.Dynamic = false
	js.StaticDesiredFrames = 5
	c.LoadSettings(Settings{
		Jitter: js,
		Output: OutputSettings{
			BufferSizeFrames:         4,
			StarveDetectionEnabled:   true,
			StarveDetectionPeriod:    5 * time.Second,
			StarveDetectionThreshold: 7,
		},
	})

	render, _ := p.lastOutputs(t)
	assert.Equal(t, 4*512*audio.SampleBytes, render.bufferBytes)

	saved := c.SaveSettings()
	assert.False(t, saved.Jitter.Dynamic)
	assert.Equal(t, 5, saved.Jitter.StaticDesiredFrames)
	assert.Equal(t, 4, saved.Output.BufferSizeFrames)
	assert.Equal(t, 5*time.Second, saved.Output.StarveDetectionPeriod)
	assert.Equal(t, 7, saved.Output.StarveDetectionThreshold)
}

func TestSaveSettingsRecordsDesiredFrames(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	saved := c.SaveSettings()
	assert.Equal(t, c.stream.DesiredFrames(), saved.Jitter.StaticDesiredFrames)
	assert.Equal(t, DefaultOutputBufferFrames, saved.Output.BufferSizeFrames)
}

func TestStarveDetectorWindow(t *testing.T) {
	var d starveDetector
	start := time.Unix(100, 0)

	assert.False(t, d.tick(start, 10, 10*time.Second, 3), "first tick only opens the window")
	assert.False(t, d.tick(start.Add(time.Second), 3, 10*time.Second, 3))
	assert.True(t, d.tick(start.Add(2*time.Second), 1, 10*time.Second, 3))
	assert.Equal(t, 0, d.count)

	d.reset()
	assert.True(t, d.windowStart.IsZero())
}

func TestStarveDetectorIgnoresQuietTicks(t *testing.T) {
	var d starveDetector
	start := time.Unix(100, 0)
	period := 10 * time.Second

	assert.False(t, d.tick(start, 1, period, 3), "opens the window")
	assert.False(t, d.tick(start.Add(11*time.Second), 0, period, 3), "quiet tick leaves the window alone")
	assert.Equal(t, start, d.windowStart)
	assert.False(t, d.tick(start.Add(12*time.Second), 4, period, 3), "stale window restarts instead of growing")
	assert.Equal(t, start.Add(12*time.Second), d.windowStart)
	assert.Zero(t, d.count)
}

func TestQuietNotifyDoesNotRestartStarvationWindow(t *testing.T) {
	c, _, clock := starvingClient(t)

	starve(c, 1)
	c.OutputNotify()

	clock.advance(11 * time.Second)
	c.OutputNotify()

	starve(c, 4)
	clock.advance(time.Second)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames, c.OutputBufferSizeFrames())
	assert.Zero(t, c.Stats().BufferGrowths)

	starve(c, 4)
	clock.advance(time.Second)
	c.OutputNotify()
	assert.Equal(t, DefaultOutputBufferFrames+1, c.OutputBufferSizeFrames())
}

func TestStopClosesStreams(t *testing.T) {
	p := newFakeProvider()
	c := NewClient(p, nil, DefaultOptions())
	require.NoError(t, c.Start())

	c.Stop()
	assert.True(t, p.inputStream.closed)
	assert.True(t, p.opened[0].stream.closed)
	assert.True(t, p.opened[1].stream.closed)
	assert.Equal(t, "", c.InputDeviceName())
	assert.Equal(t, "", c.OutputDeviceName())
}

func TestResetClearsReceivedAudio(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	require.NoError(t, c.HandlePacket(protocol.MixedAudio{Samples: constant(512, 700)}.Encode()))
	assert.Equal(t, 512, c.stream.SamplesAvailable())

	c.Reset()
	assert.Equal(t, 0, c.stream.SamplesAvailable())
}

func TestOutputLocalInjector(t *testing.T) {
	c, p, _ := newTestClient(t, nil)

	inj, err := c.OutputLocalInjector(constant(256, 1000), false, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 256, inj.Remaining())

	last := p.opened[len(p.opened)-1]
	assert.Equal(t, audio.NetworkFormat(1), last.format)
	assert.True(t, last.stream.started)

	buf := make([]byte, 4)
	_, err = last.src.Read(buf)
	require.NoError(t, err)
	samples := make([]int16, 2)
	audio.BytesToSamples(samples, buf)
	assert.Equal(t, []int16{500, 500}, samples)

	require.NoError(t, inj.Close())
	assert.True(t, last.stream.closed)

	_, err = c.OutputLocalInjector(nil, false, 10)
	assert.Error(t, err, "volume out of range")
}

func TestDeviceQueriesAndChanges(t *testing.T) {
	c, p, _ := newTestClient(t, nil)

	inputs, err := c.DeviceNames(device.ModeInput)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mic"}, inputs)
	assert.Equal(t, "Speakers", c.DefaultDeviceName(device.ModeOutput))

	var gotInputs []string
	c.OnDevicesChanged(func(in, out []string) { gotInputs = in })
	assert.False(t, c.CheckDevices())

	p.mu.Lock()
	p.inputs = append(p.inputs, device.Info{Name: "Headset", MinChannels: 1, MaxChannels: 1, SampleRates: []int{24000}})
	p.mu.Unlock()
	assert.True(t, c.CheckDevices())
	assert.Equal(t, []string{"Mic", "Headset"}, gotInputs)

	require.NoError(t, c.SwitchInputDevice("Headset"))
	assert.Equal(t, "Headset", c.InputDeviceName())
}
