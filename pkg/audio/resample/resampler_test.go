// ABOUTME: Tests for audio resampler
// ABOUTME: Tests exact output counts, steady-state levels and reset behavior
package resample

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantBlock(n int, v int16) []int16 {
	b := make([]int16, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestNewResampler(t *testing.T) {
	r, err := New(44100, 48000, 2)
	require.NoError(t, err)
	assert.Equal(t, 44100, r.inputRate)
	assert.Equal(t, 48000, r.outputRate)
	assert.Equal(t, 2, r.Channels())
	assert.Zero(t, r.Pending())
}

func TestNewResamplerRejects(t *testing.T) {
	tests := []struct {
		name     string
		in, out  int
		channels int
	}{
		{"zero input rate", 0, 48000, 2},
		{"negative output rate", 48000, -1, 2},
		{"surround", 48000, 44100, 6},
		{"ratio too large", 100, 48000, 1},
		{"ratio too small", 48000, 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.in, tt.out, tt.channels)
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, ErrCreation))
		})
	}
}

func TestResampleFillsWholeFrames(t *testing.T) {
	r, err := New(48000, 44100, 2)
	require.NoError(t, err)

	output := make([]int16, 441)
	output[440] = 77

	// a trailing half frame is left untouched
	assert.Equal(t, 440, r.Resample(constantBlock(480, 100), output))
	assert.Equal(t, int16(77), output[440])
}

func TestResampleExactCounts(t *testing.T) {
	tests := []struct {
		name       string
		in, out    int
		channels   int
		inSamples  int
		outSamples int
	}{
		{"24k to 48k mono", 24000, 48000, 1, 256, 512},
		{"48k to 24k stereo", 48000, 24000, 2, 1024, 512},
		{"44.1k to 24k mono", 44100, 24000, 1, 470, 256},
		{"24k to 44.1k stereo", 24000, 44100, 2, 512, 940},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.in, tt.out, tt.channels)
			require.NoError(t, err)
			output := make([]int16, tt.outSamples)
			for block := 0; block < 20; block++ {
				require.Equal(t, tt.outSamples, r.Resample(constantBlock(tt.inSamples, 1000), output), "block %d", block)
				assert.LessOrEqual(t, r.Pending(), tt.outSamples/tt.channels*maxPendingBlocks)
			}
		})
	}
}

func TestResampleSilenceStaysSilent(t *testing.T) {
	r, err := New(44100, 24000, 2)
	require.NoError(t, err)

	output := make([]int16, 512)
	for block := 0; block < 5; block++ {
		r.Resample(make([]int16, 940), output)
		assert.Equal(t, make([]int16, 512), output, "block %d", block)
	}
}

func TestResampleConstantSignalSettles(t *testing.T) {
	r, err := New(24000, 48000, 1)
	require.NoError(t, err)

	input := constantBlock(256, 1000)
	output := make([]int16, 512)
	for block := 0; block < 20; block++ {
		require.Equal(t, 512, r.Resample(input, output))
	}
	for i, s := range output {
		assert.InDelta(t, 1000, s, 20, "sample %d", i)
	}
}

func TestResampleKeepsToneLevel(t *testing.T) {
	r, err := New(44100, 48000, 1)
	require.NoError(t, err)

	const amplitude = 8000.0
	var phase int
	output := make([]int16, 480)
	for block := 0; block < 30; block++ {
		input := make([]int16, 441)
		for i := range input {
			input[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(phase)/44100))
			phase++
		}
		r.Resample(input, output)
	}

	var peak float64
	for _, s := range output {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	assert.InDelta(t, amplitude, peak, amplitude*0.05)
}

func TestResampleClampsToInt16(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), toSample(1.5))
	assert.Equal(t, int16(math.MinInt16), toSample(-1.5))
	assert.Equal(t, int16(16384), toSample(0.5))
}

func TestResampleEmptyInput(t *testing.T) {
	r, err := New(44100, 48000, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Resample(nil, make([]int16, 10)))
}

func TestSamplesNeeded(t *testing.T) {
	r, err := New(48000, 24000, 1)
	require.NoError(t, err)
	assert.Equal(t, 256, r.OutputSamplesNeeded(512))
	assert.Equal(t, 512, r.InputSamplesNeeded(256))
}

func TestResamplerReset(t *testing.T) {
	r, err := New(24000, 48000, 1)
	require.NoError(t, err)

	out := make([]int16, 512)
	for block := 0; block < 10; block++ {
		r.Resample(constantBlock(256, 5000), out)
	}
	require.NotZero(t, out[len(out)-1])

	r.Reset()
	assert.Zero(t, r.Pending())
	assert.Equal(t, []int16{0}, r.last)

	r.Resample(make([]int16, 256), out)
	assert.Equal(t, make([]int16, 512), out, "no history survives a reset")
}
