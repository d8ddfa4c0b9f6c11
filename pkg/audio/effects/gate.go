// ABOUTME: Noise gate with loudness and clipping tracking
// ABOUTME: Silences frames that stay near the adaptive noise floor
package effects

import (
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/sirupsen/logrus"
)

const (
	// gate opens when loudness exceeds floor * gateRatio
	gateRatio = 2.0
	// loudness below this never opens the gate (about -60 dBFS)
	minGateLevel = 32.0
	// frames the gate stays open after loudness falls below the threshold
	closeDelayFrames = 5
	// per-frame rise of the noise floor towards louder input
	floorRise = 0.001
)

// ClipThreshold is the absolute sample magnitude counted as clipping
const ClipThreshold = audio.ClippingThreshold

// Loudness returns the mean absolute sample value of samples and whether any
// sample exceeds ClipThreshold.
func Loudness(samples []int16) (float32, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum int64
	clipped := false
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > ClipThreshold {
			clipped = true
		}
		sum += int64(v)
	}
	return float32(sum) / float32(len(samples)), clipped
}

// NoiseGate is a rolling loudness and clip detector that mutes frames it
// considers background noise. It is not safe for concurrent use.
type NoiseGate struct {
	lastLoudness  float32
	clipped       bool
	floor         float32
	open          bool
	framesToClose int
}

// NewNoiseGate creates a closed gate
func NewNoiseGate() *NoiseGate {
	return &NoiseGate{}
}

// GateSamples measures samples and zeroes them in place when the gate is closed
func (g *NoiseGate) GateSamples(samples []int16) {
	loudness, clipped := Loudness(samples)
	g.clipped = clipped

	if loudness < g.floor {
		g.floor = loudness
	} else {
		g.floor += (loudness - g.floor) * floorRise
	}

	threshold := g.floor * gateRatio
	if threshold < minGateLevel {
		threshold = minGateLevel
	}

	wasOpen := g.open
	switch {
	case loudness > threshold:
		g.open = true
		g.framesToClose = closeDelayFrames
	case g.framesToClose > 0:
		g.framesToClose--
	default:
		g.open = false
	}

	if wasOpen != g.open {
		logrus.WithFields(logrus.Fields{
			"function": "NoiseGate.GateSamples",
			"open":     g.open,
			"loudness": loudness,
			"floor":    g.floor,
		}).Debug("Noise gate state changed")
	}

	if !g.open {
		for i := range samples {
			samples[i] = 0
		}
		g.lastLoudness = 0
		return
	}
	g.lastLoudness = loudness
}

// LastLoudness returns the loudness of the last frame, 0 when it was gated
func (g *NoiseGate) LastLoudness() float32 {
	return g.lastLoudness
}

// ClippedInLastFrame reports whether the last frame contained a clipped sample
func (g *NoiseGate) ClippedInLastFrame() bool {
	return g.clipped
}

// IsOpen reports whether the gate passed the last frame
func (g *NoiseGate) IsOpen() bool {
	return g.open
}

// Reset closes the gate and forgets the noise floor
func (g *NoiseGate) Reset() {
	*g = NoiseGate{}
}
