package jitter

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSamples = audio.NetworkFrameSamplesStereo

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func frameOf(v int16) []int16 {
	f := make([]int16, frameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

func staticSettings(desired, maxOver int) Settings {
	s := DefaultSettings()
	s.Dynamic = false
	s.StaticDesiredFrames = desired
	s.MaxFramesOverDesired = maxOver
	return s
}

func TestWriteAndPop(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)

	dst := make([]int16, frameSamples)
	assert.Zero(t, s.PopSamples(dst, true), "nothing buffered yet")
	assert.Zero(t, s.Stats().Starves, "initial fill is not a starve")

	s.WriteAudio(0, frameOf(7))
	n := s.PopSamples(dst, true)
	require.Equal(t, frameSamples, n)
	assert.Equal(t, frameOf(7), dst)
	assert.Equal(t, frameOf(7), []int16(s.LastPop()))

	assert.Zero(t, s.PopSamples(dst, true))
	assert.Equal(t, 1, s.Stats().Starves)
	assert.Empty(t, s.LastPop())
}

func TestPartialPop(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)
	s.WriteAudio(0, frameOf(1))

	dst := make([]int16, frameSamples*2)
	assert.Zero(t, s.PopSamples(dst, false), "not enough for a full pop")
	assert.Equal(t, 1, s.Stats().Starves)

	s.WriteAudio(1, frameOf(2))
	assert.Equal(t, frameSamples*2, s.PopSamples(dst, false))

	s.WriteAudio(2, frameOf(3))
	assert.Equal(t, frameSamples, s.PopSamples(dst, true))
}

func TestLatePacketsDropped(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)
	s.WriteAudio(5, frameOf(1))
	s.WriteAudio(4, frameOf(2))

	st := s.Stats()
	assert.Equal(t, 1, st.LatePackets)
	assert.Equal(t, 1, st.FramesAvailable)
}

func TestSequenceWraps(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)
	s.WriteAudio(65535, frameOf(1))
	s.WriteAudio(0, frameOf(2))

	st := s.Stats()
	assert.Zero(t, st.LatePackets)
	assert.Zero(t, st.LostPackets)
	assert.Equal(t, 2, st.FramesAvailable)
}

func TestLostPacketsRepeatWithFade(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, staticSettings(3, 10), newClock().now)
	s.WriteAudio(0, frameOf(1200))
	s.WriteAudio(3, frameOf(30))

	st := s.Stats()
	assert.Equal(t, 2, st.LostPackets)
	assert.Equal(t, 4, st.FramesAvailable)

	dst := make([]int16, frameSamples)
	expected := []int16{1200, 600, 400, 30}
	for i, v := range expected {
		require.Equal(t, frameSamples, s.PopSamples(dst, false), "frame %d", i)
		assert.Equal(t, v, dst[0], "frame %d", i)
	}
}

func TestLostPacketsSilenceWithoutRepetition(t *testing.T) {
	settings := staticSettings(2, 10)
	settings.RepetitionWithFade = false
	s := NewStream(DefaultCapacityFrames, frameSamples, settings, newClock().now)
	s.WriteAudio(0, frameOf(1200))
	s.WriteAudio(10, frameOf(30))

	// fill is capped at the desired depth
	st := s.Stats()
	assert.Equal(t, 9, st.LostPackets)
	assert.Equal(t, 4, st.FramesAvailable)

	dst := make([]int16, frameSamples)
	s.PopSamples(dst, false)
	s.PopSamples(dst, false)
	assert.Equal(t, make([]int16, frameSamples), dst)
}

func TestOverflowDropsOldest(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, staticSettings(1, 2), newClock().now)
	for i := 0; i < 5; i++ {
		s.WriteAudio(uint16(i), frameOf(int16(i)))
	}

	st := s.Stats()
	assert.Equal(t, 3, st.FramesAvailable)
	assert.Equal(t, 2, st.FramesDropped)

	dst := make([]int16, frameSamples)
	s.PopSamples(dst, false)
	assert.Equal(t, int16(2), dst[0])
}

func TestSilentFramesDroppedAboveDesired(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)
	s.WriteSilence(0, frameSamples)
	assert.Equal(t, 1, s.Stats().FramesAvailable)

	s.WriteAudio(1, frameOf(5))
	s.WriteSilence(2, frameSamples)

	st := s.Stats()
	assert.Equal(t, 1, st.SilentFramesDropped)
	assert.Equal(t, 2, st.FramesAvailable)
}

func TestProcessorConvertsFrames(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, audio.NetworkFrameSamplesPerChannel, DefaultSettings(), newClock().now)

	// mono network frames become stereo device frames
	s.SetProcessor(func(in []int16) []int16 {
		out := make([]int16, len(in)*2)
		for i, v := range in {
			out[i*2] = v
			out[i*2+1] = -v
		}
		return out
	}, audio.NetworkFrameSamplesPerChannel*2)

	in := make([]int16, audio.NetworkFrameSamplesPerChannel)
	for i := range in {
		in[i] = 9
	}
	s.WriteAudio(0, in)
	assert.Equal(t, 1, s.Stats().FramesAvailable)
	assert.Equal(t, audio.NetworkFrameSamplesPerChannel*2, s.SamplesAvailable())

	dst := make([]int16, 4)
	require.Equal(t, 4, s.PopSamples(dst, true))
	assert.Equal(t, []int16{9, -9, 9, -9}, dst)
}

func TestDynamicDesiredGrowsAfterStarves(t *testing.T) {
	clock := newClock()
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), clock.now)
	dst := make([]int16, frameSamples)

	for i := 0; i < DefaultWindowStarveThreshold; i++ {
		clock.advance(100 * time.Millisecond)
		s.WriteAudio(uint16(i), frameOf(1))
		require.Equal(t, frameSamples, s.PopSamples(dst, true))
		require.Zero(t, s.PopSamples(dst, true))
	}

	// 100ms gaps over 10.67ms frames
	assert.Equal(t, 10, s.DesiredFrames())
	assert.Equal(t, 3, s.Stats().Starves)

	// consistent 10ms arrivals for a full reduction window bring it back down
	for i := 0; i < 1001; i++ {
		clock.advance(10 * time.Millisecond)
		s.WriteAudio(uint16(DefaultWindowStarveThreshold+i), frameOf(1))
	}
	assert.Equal(t, 1, s.DesiredFrames())
}

func TestRefillAfterStarveWaitsForDesired(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, staticSettings(2, 10), newClock().now)
	dst := make([]int16, frameSamples)

	s.WriteAudio(0, frameOf(1))
	assert.Zero(t, s.PopSamples(dst, true), "below desired depth")
	s.WriteAudio(1, frameOf(1))
	assert.Equal(t, frameSamples, s.PopSamples(dst, true))
}

func TestReconfigureAndReset(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)
	s.Reconfigure(staticSettings(4, 10))
	assert.Equal(t, 4, s.DesiredFrames())
	assert.False(t, s.Settings().Dynamic)

	s.Reconfigure(staticSettings(500, 10))
	assert.Equal(t, DefaultCapacityFrames, s.DesiredFrames())

	s.WriteAudio(0, frameOf(1))
	s.WriteAudio(7, frameOf(1))
	s.Reset()
	st := s.Stats()
	assert.Zero(t, st.FramesAvailable)
	assert.Zero(t, st.LostPackets)
	assert.Zero(t, st.PacketsReceived)

	// sequence tracking restarts
	s.WriteAudio(3, frameOf(1))
	assert.Zero(t, s.Stats().LostPackets)
}

func TestFrameDuration(t *testing.T) {
	s := NewStream(DefaultCapacityFrames, frameSamples, DefaultSettings(), newClock().now)
	d := s.frameDuration()
	assert.Equal(t, 10666666*time.Nanosecond, d)
	assert.InDelta(t, float64(audio.NetworkFrameSeconds), d.Seconds(), 1e-6)
}
