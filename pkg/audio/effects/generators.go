// ABOUTME: Synthetic source generators for input injection
// ABOUTME: 440Hz sine tone and pink noise rendered additively onto a frame
package effects

import (
	"math"
	"math/rand"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Generator renders synthetic audio onto an interleaved frame
type Generator interface {
	Render(samples []int16, channels int)
	Reset()
}

// ToneGenerator produces a sine wave
type ToneGenerator struct {
	sampleRate  int
	frequency   float64
	amplitude   float64
	sampleIndex uint64
}

// NewToneGenerator creates a 440Hz tone generator at half scale
func NewToneGenerator(sampleRate int) *ToneGenerator {
	return &ToneGenerator{
		sampleRate: sampleRate,
		frequency:  440.0, // A4 note
		amplitude:  0.5,
	}
}

// Render adds the tone to every channel of samples
func (g *ToneGenerator) Render(samples []int16, channels int) {
	frames := len(samples) / channels
	for i := 0; i < frames; i++ {
		t := float64(g.sampleIndex+uint64(i)) / float64(g.sampleRate)
		v := int(math.Sin(2*math.Pi*g.frequency*t) * audio.MaxSampleValue * g.amplitude)
		for ch := 0; ch < channels; ch++ {
			idx := i*channels + ch
			samples[idx] = audio.ClampSample(int(samples[idx]) + v)
		}
	}
	g.sampleIndex += uint64(frames)
}

// Reset restarts the wave at phase zero
func (g *ToneGenerator) Reset() {
	g.sampleIndex = 0
}

// PinkNoiseGenerator produces pink noise using Paul Kellet's economy filter
type PinkNoiseGenerator struct {
	rng       *rand.Rand
	seed      int64
	amplitude float64
	b0, b1    float64
	b2        float64
}

// NewPinkNoiseGenerator creates a pink noise generator with a fixed seed
func NewPinkNoiseGenerator(seed int64) *PinkNoiseGenerator {
	return &PinkNoiseGenerator{
		rng:       rand.New(rand.NewSource(seed)),
		seed:      seed,
		amplitude: 0.25,
	}
}

// Render adds noise to every channel of samples
func (g *PinkNoiseGenerator) Render(samples []int16, channels int) {
	frames := len(samples) / channels
	for i := 0; i < frames; i++ {
		white := g.rng.Float64()*2 - 1
		g.b0 = 0.99765*g.b0 + white*0.0990460
		g.b1 = 0.96300*g.b1 + white*0.2965164
		g.b2 = 0.57000*g.b2 + white*1.0526913
		pink := (g.b0 + g.b1 + g.b2 + white*0.1848) * 0.25
		if pink > 1 {
			pink = 1
		} else if pink < -1 {
			pink = -1
		}
		v := int(pink * audio.MaxSampleValue * g.amplitude)
		for ch := 0; ch < channels; ch++ {
			idx := i*channels + ch
			samples[idx] = audio.ClampSample(int(samples[idx]) + v)
		}
	}
}

// Reset reseeds the generator and clears its filter
func (g *PinkNoiseGenerator) Reset() {
	g.rng = rand.New(rand.NewSource(g.seed))
	g.b0, g.b1, g.b2 = 0, 0, 0
}
