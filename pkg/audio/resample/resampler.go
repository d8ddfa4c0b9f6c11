// ABOUTME: Streaming resampling engine for interleaved 16-bit PCM
// ABOUTME: Wraps go-audio-resampler and pads or trims its output to exact block sizes
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	resampler "github.com/tphakala/go-audio-resampler"
)

// ErrCreation is returned when a resampler cannot be built for a rate pair
var ErrCreation = errors.New("resampler creation failed")

const (
	maxRatio    = 256.0
	sampleScale = 32768.0

	// maxPendingBlocks bounds queued engine output, in output blocks
	maxPendingBlocks = 2
)

// engine is the part of the go-audio-resampler API used here
type engine interface {
	ProcessMulti(input [][]float64) ([][]float64, error)
}

// Resampler converts interleaved int16 audio between two sample rates.
// The engine runs a polyphase FIR filter with its own latency, so its
// output per call varies. Resample queues that output and hands back
// exactly the block size asked for, holding the last sample while the
// queue is short.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int

	engine  engine
	planar  [][]float64
	pending [][]float64
	last    []int16 // one sample per channel
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("%w: invalid rates %d -> %d", ErrCreation, inputRate, outputRate)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrCreation, channels)
	}
	ratio := float64(outputRate) / float64(inputRate)
	if ratio > maxRatio || ratio < 1/maxRatio {
		return nil, fmt.Errorf("%w: ratio %d -> %d out of range", ErrCreation, inputRate, outputRate)
	}

	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
	}
	if err := r.build(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resampler) build() error {
	e, err := resampler.New(&resampler.Config{
		InputRate:  float64(r.inputRate),
		OutputRate: float64(r.outputRate),
		Channels:   r.channels,
		Quality:    resampler.QualitySpec{Preset: resampler.QualityLow},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreation, err)
	}
	r.engine = e
	r.planar = make([][]float64, r.channels)
	r.pending = make([][]float64, r.channels)
	r.last = make([]int16, r.channels)
	return nil
}

// Resample feeds input to the engine and fills the whole output buffer.
// It returns the number of samples written, which is len(output) rounded
// down to whole frames, or 0 when there is no input.
func (r *Resampler) Resample(input []int16, output []int16) int {
	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels
	if inputFrames == 0 || outputFrames == 0 {
		return 0
	}

	for ch := 0; ch < r.channels; ch++ {
		plane := r.planar[ch][:0]
		for i := 0; i < inputFrames; i++ {
			plane = append(plane, float64(input[i*r.channels+ch])/sampleScale)
		}
		r.planar[ch] = plane
	}

	produced, err := r.engine.ProcessMulti(r.planar)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Resampler.Resample",
			"frames":   inputFrames,
			"error":    err.Error(),
		}).Debug("Engine dropped a block")
	}
	for ch := 0; ch < r.channels && ch < len(produced); ch++ {
		r.pending[ch] = append(r.pending[ch], produced[ch]...)
	}

	for ch := 0; ch < r.channels; ch++ {
		queue := r.pending[ch]
		n := min(len(queue), outputFrames)
		for i := 0; i < n; i++ {
			output[i*r.channels+ch] = toSample(queue[i])
		}
		if n > 0 {
			r.last[ch] = output[(n-1)*r.channels+ch]
		}
		for i := n; i < outputFrames; i++ {
			output[i*r.channels+ch] = r.last[ch]
		}

		queue = queue[n:]
		if limit := outputFrames * maxPendingBlocks; len(queue) > limit {
			queue = queue[len(queue)-limit:]
		}
		r.pending[ch] = append(r.pending[ch][:0], queue...)
	}
	return outputFrames * r.channels
}

func toSample(v float64) int16 {
	s := math.Round(v * sampleScale)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return int16(s)
}

// Reset drops filter history and queued output
func (r *Resampler) Reset() {
	if err := r.build(); err != nil {
		logrus.WithError(err).Warn("Failed to rebuild resampler")
		for ch := range r.pending {
			r.pending[ch] = r.pending[ch][:0]
			r.last[ch] = 0
		}
	}
}

// Channels returns the interleaved channel count
func (r *Resampler) Channels() int {
	return r.channels
}

// Pending returns the number of engine output frames queued for the next call
func (r *Resampler) Pending() int {
	return len(r.pending[0])
}

// OutputSamplesNeeded calculates how many output samples correspond to inputSamples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)*float64(r.outputRate)/float64(r.inputRate) + 0.5)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce outputSamples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames)*float64(r.inputRate)/float64(r.outputRate) + 0.5)
	return inputFrames * r.channels
}
