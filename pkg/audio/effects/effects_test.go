package effects

import (
	"math"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDbToCoef(t *testing.T) {
	assert.InDelta(t, 1.0, DbToCoef(0), 1e-6)
	assert.InDelta(t, 0.5012, DbToCoef(-6), 1e-3)
	assert.InDelta(t, 0.1, DbToCoef(-20), 1e-6)
}

func TestGain(t *testing.T) {
	tests := []struct {
		name     string
		gain     float64
		input    []int16
		expected []int16
		clipped  int
	}{
		{"unity", 1.0, []int16{100, -100}, []int16{100, -100}, 0},
		{"half", 0.5, []int16{100, -100}, []int16{50, -50}, 0},
		{"silence", 0.0, []int16{100, -100}, []int16{0, 0}, 0},
		{"saturates", 2.0, []int16{20000, -20000, 10}, []int16{32767, -32768, 20}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGain(tt.gain)
			require.NoError(t, err)
			samples := append([]int16(nil), tt.input...)
			assert.Equal(t, tt.clipped, g.Render(samples))
			assert.Equal(t, tt.expected, samples)
		})
	}
}

func TestGainValidation(t *testing.T) {
	_, err := NewGain(-1)
	assert.Error(t, err)
	_, err = NewGain(5)
	assert.Error(t, err)

	g, err := NewGain(1)
	require.NoError(t, err)
	require.NoError(t, g.SetGainDb(-20))
	assert.InDelta(t, 0.1, g.Value(), 1e-6)
}

func TestToneGeneratorIsAdditive(t *testing.T) {
	tone := NewToneGenerator(audio.NetworkSampleRate)
	base := make([]int16, 512)
	for i := range base {
		base[i] = 1000
	}
	tone.Render(base, 2)

	ref := NewToneGenerator(audio.NetworkSampleRate)
	silent := make([]int16, 512)
	ref.Render(silent, 2)

	for i := range base {
		assert.Equal(t, int(silent[i])+1000, int(base[i]), "sample %d", i)
	}
	// both channels carry the same value
	for i := 0; i < len(silent); i += 2 {
		assert.Equal(t, silent[i], silent[i+1])
	}
}

func TestToneGeneratorPhaseContinues(t *testing.T) {
	a := NewToneGenerator(audio.NetworkSampleRate)
	whole := make([]int16, 200)
	a.Render(whole, 1)

	b := NewToneGenerator(audio.NetworkSampleRate)
	first := make([]int16, 100)
	second := make([]int16, 100)
	b.Render(first, 1)
	b.Render(second, 1)

	assert.Equal(t, whole, append(first, second...))

	b.Reset()
	again := make([]int16, 100)
	b.Render(again, 1)
	assert.Equal(t, first, again)
}

func TestToneGeneratorAmplitude(t *testing.T) {
	tone := NewToneGenerator(audio.NetworkSampleRate)
	samples := make([]int16, audio.NetworkSampleRate/10)
	tone.Render(samples, 1)

	peak := 0
	for _, s := range samples {
		if v := int(math.Abs(float64(s))); v > peak {
			peak = v
		}
	}
	assert.InDelta(t, audio.MaxSampleValue/2, peak, 50)
}

func TestPinkNoiseDeterministic(t *testing.T) {
	a := NewPinkNoiseGenerator(7)
	b := NewPinkNoiseGenerator(7)
	sa := make([]int16, 512)
	sb := make([]int16, 512)
	a.Render(sa, 1)
	b.Render(sb, 1)
	assert.Equal(t, sa, sb)

	loudness, _ := Loudness(sa)
	assert.Greater(t, loudness, float32(0))

	a.Reset()
	again := make([]int16, 512)
	a.Render(again, 1)
	assert.Equal(t, sa, again)
}

func TestLoudness(t *testing.T) {
	loudness, clipped := Loudness([]int16{100, -100, 300, -300})
	assert.Equal(t, float32(200), loudness)
	assert.False(t, clipped)

	_, clipped = Loudness([]int16{0, int16(ClipThreshold + 1)})
	assert.True(t, clipped)

	_, clipped = Loudness([]int16{0, int16(-ClipThreshold - 1)})
	assert.True(t, clipped)

	_, clipped = Loudness([]int16{int16(ClipThreshold)})
	assert.False(t, clipped)

	loudness, clipped = Loudness(nil)
	assert.Zero(t, loudness)
	assert.False(t, clipped)
}

func constantFrame(v int16) []int16 {
	f := make([]int16, audio.NetworkFrameSamplesPerChannel)
	for i := range f {
		if i%2 == 0 {
			f[i] = v
		} else {
			f[i] = -v
		}
	}
	return f
}

func TestNoiseGateClosedOnQuietInput(t *testing.T) {
	g := NewNoiseGate()
	frame := constantFrame(10)
	g.GateSamples(frame)

	assert.False(t, g.IsOpen())
	assert.Zero(t, g.LastLoudness())
	assert.Equal(t, make([]int16, len(frame)), frame)
}

func TestNoiseGateOpensAndHolds(t *testing.T) {
	g := NewNoiseGate()

	loud := constantFrame(5000)
	g.GateSamples(loud)
	assert.True(t, g.IsOpen())
	assert.Equal(t, float32(5000), g.LastLoudness())
	assert.Equal(t, int16(5000), loud[0])

	for i := 0; i < closeDelayFrames; i++ {
		quiet := constantFrame(10)
		g.GateSamples(quiet)
		assert.True(t, g.IsOpen(), "held open frame %d", i)
		assert.Equal(t, int16(10), quiet[0])
	}

	quiet := constantFrame(10)
	g.GateSamples(quiet)
	assert.False(t, g.IsOpen())
	assert.Zero(t, quiet[0])
}

func TestNoiseGateClipping(t *testing.T) {
	g := NewNoiseGate()
	g.GateSamples(constantFrame(32000))
	assert.True(t, g.ClippedInLastFrame())

	g.GateSamples(constantFrame(1000))
	assert.False(t, g.ClippedInLastFrame())

	g.Reset()
	assert.False(t, g.IsOpen())
	assert.Zero(t, g.LastLoudness())
}
