// ABOUTME: Linear gain stage with saturation
// ABOUTME: Used for microphone input gain and post-injection source gain
package effects

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

const maxGain = 4.0

// DbToCoef converts decibels to a linear amplitude coefficient
func DbToCoef(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

// Gain applies a linear gain to samples in place, saturating at the int16 limits.
// A zero Gain is silent; use NewGain for unity.
type Gain struct {
	gain float64
}

// NewGain creates a gain stage. Gain values: 0.0 = silence, 1.0 = unity, 2.0 = +6dB.
func NewGain(gain float64) (*Gain, error) {
	g := &Gain{}
	if err := g.SetGain(gain); err != nil {
		return nil, err
	}
	return g, nil
}

// SetGain updates the linear gain
func (g *Gain) SetGain(gain float64) error {
	if gain < 0.0 || gain > maxGain {
		logrus.WithFields(logrus.Fields{
			"function": "Gain.SetGain",
			"gain":     gain,
		}).Error("Gain validation failed")
		return fmt.Errorf("gain out of range [0, %.1f]: %f", maxGain, gain)
	}
	g.gain = gain
	return nil
}

// SetGainDb updates the gain from a decibel value
func (g *Gain) SetGainDb(db float32) error {
	return g.SetGain(float64(DbToCoef(db)))
}

// Value returns the current linear gain
func (g *Gain) Value() float64 {
	return g.gain
}

// Render applies the gain in place and returns the number of clipped samples
func (g *Gain) Render(samples []int16) int {
	if g.gain == 1.0 {
		return 0
	}
	clipped := 0
	for i, s := range samples {
		v := float64(s) * g.gain
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
			clipped++
		case v < math.MinInt16:
			samples[i] = math.MinInt16
			clipped++
		default:
			samples[i] = int16(v)
		}
	}
	return clipped
}

func (g *Gain) String() string {
	return fmt.Sprintf("Gain(%.2f)", g.gain)
}
