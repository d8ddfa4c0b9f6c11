// ABOUTME: Reverb kernel interface and a comb/allpass default implementation
// ABOUTME: A kernel turns one mono input sample into a left/right wet pair
package reverb

import (
	"math"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/effects"
)

// Kernel is a reverb DSP instance. Kernels are stateful and serve one audio path.
type Kernel interface {
	// Process feeds one input sample and returns the wet left and right outputs
	Process(in float32) (l, r float32)
	// SetOptions updates parameters without discarding the tail
	SetOptions(opts Options)
}

// Factory builds a kernel for a sample rate
type Factory func(sampleRate int, opts Options) Kernel

const referenceRate = 44100

// Schroeder/Moorer tunings at 44.1kHz
var (
	combTunings    = []int{1116, 1188, 1277, 1356}
	allpassTunings = []int{556, 441}
)

const allpassGain = 0.5

type comb struct {
	buf      []float32
	length   int
	idx      int
	feedback float32
	damp     float32
	store    float32
}

func (c *comb) process(in float32) float32 {
	out := c.buf[c.idx]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.idx] = in + c.store*c.feedback
	c.idx++
	if c.idx >= c.length {
		c.idx = 0
	}
	return out
}

type allpass struct {
	buf    []float32
	length int
	idx    int
}

func (a *allpass) process(in float32) float32 {
	bufOut := a.buf[a.idx]
	out := bufOut - in
	a.buf[a.idx] = in + bufOut*allpassGain
	a.idx++
	if a.idx >= a.length {
		a.idx = 0
	}
	return out
}

type channel struct {
	combs     []*comb
	allpasses []*allpass
}

func (ch *channel) process(in float32) float32 {
	var sum float32
	for _, c := range ch.combs {
		sum += c.process(in)
	}
	for _, a := range ch.allpasses {
		sum = a.process(sum)
	}
	return sum
}

// SimpleKernel is a small stereo comb/allpass reverberator.
// Buffers are sized for MaxRoomSize at construction; RoomSize only shortens them.
type SimpleKernel struct {
	sampleRate int
	maxRoom    float32
	left       channel
	right      channel
	bandwidth  float32
	filtered   float32
	early      float32
	tail       float32
}

// NewSimpleKernel is a Factory for SimpleKernel
func NewSimpleKernel(sampleRate int, opts Options) Kernel {
	maxRoom := opts.MaxRoomSize
	if maxRoom <= 0 {
		maxRoom = DefaultOptions().MaxRoomSize
	}
	k := &SimpleKernel{sampleRate: sampleRate, maxRoom: maxRoom}
	scale := float64(sampleRate) / referenceRate
	spread := int(math.Ceil(float64(opts.Spread) * scale))

	build := func(offset int) channel {
		var ch channel
		for _, t := range combTunings {
			n := int(float64(t)*scale) + offset + 1
			ch.combs = append(ch.combs, &comb{buf: make([]float32, n), length: n})
		}
		for _, t := range allpassTunings {
			n := int(float64(t)*scale) + offset + 1
			ch.allpasses = append(ch.allpasses, &allpass{buf: make([]float32, n), length: n})
		}
		return ch
	}
	k.left = build(0)
	k.right = build(spread)
	k.SetOptions(opts)
	return k
}

// SetOptions retunes delay lengths, feedback and levels
func (k *SimpleKernel) SetOptions(opts Options) {
	room := opts.RoomSize / k.maxRoom
	if room > 1 {
		room = 1
	} else if room < 0.1 {
		room = 0.1
	}

	for _, ch := range []*channel{&k.left, &k.right} {
		for _, c := range ch.combs {
			c.length = clampLength(int(float32(len(c.buf))*room), len(c.buf))
			if c.idx >= c.length {
				c.idx = 0
			}
			delay := float64(c.length) / float64(k.sampleRate)
			if opts.ReverbTime > 0 {
				c.feedback = float32(math.Pow(10, -3*delay/float64(opts.ReverbTime)))
			} else {
				c.feedback = 0
			}
			c.damp = clampUnit(opts.Damping)
		}
		for _, a := range ch.allpasses {
			a.length = clampLength(int(float32(len(a.buf))*room), len(a.buf))
			if a.idx >= a.length {
				a.idx = 0
			}
		}
	}

	k.bandwidth = clampUnit(opts.InputBandwidth)
	k.early = effects.DbToCoef(opts.EarlyLevel)
	k.tail = effects.DbToCoef(opts.TailLevel)
}

// Process runs one input sample through both channels
func (k *SimpleKernel) Process(in float32) (float32, float32) {
	k.filtered = k.bandwidth*in + (1-k.bandwidth)*k.filtered
	early := k.filtered * k.early
	return early + k.left.process(k.filtered)*k.tail, early + k.right.process(k.filtered)*k.tail
}

func clampLength(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
