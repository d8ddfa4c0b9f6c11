// ABOUTME: Format-to-format conversion context and channel up/down-mix
// ABOUTME: Wraps the engine for a fixed source/destination format pair
package resample

import (
	"fmt"
	"math"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/sirupsen/logrus"
)

// Context converts between one fixed pair of formats. It only exists when
// the sample rates differ; channel-only differences need no context.
type Context struct {
	src     audio.Format
	dst     audio.Format
	engine  *Resampler
	scratch []int16
}

// NewContext builds a context for src -> dst
func NewContext(src, dst audio.Format) (*Context, error) {
	engine, err := New(src.SampleRate, dst.SampleRate, dst.Channels)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewContext",
			"src":      src.String(),
			"dst":      dst.String(),
			"error":    err.Error(),
		}).Error("Failed to create resampler")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewContext",
		"src":      src.String(),
		"dst":      dst.String(),
	}).Debug("Created resampler")

	return &Context{src: src, dst: dst, engine: engine}, nil
}

// ForFormats returns a context when the sample rates differ and nil when
// they match (pass-through or channel conversion only).
func ForFormats(src, dst audio.Format) (*Context, error) {
	if src.SampleRate == dst.SampleRate {
		return nil, nil
	}
	return NewContext(src, dst)
}

// Source returns the source format
func (c *Context) Source() audio.Format { return c.src }

// Destination returns the destination format
func (c *Context) Destination() audio.Format { return c.dst }

// Reset drops filter history
func (c *Context) Reset() {
	c.engine.Reset()
}

// NumDestinationSamples returns round(n * dstRate/srcRate * dstCh/srcCh)
func NumDestinationSamples(n int, src, dst audio.Format) int {
	ratio := (float64(dst.SampleRate) / float64(src.SampleRate)) *
		(float64(dst.Channels) / float64(src.Channels))
	return int(math.Floor(float64(n)*ratio + 0.5))
}

// ConvertChannels up- or down-mixes src into dst and returns samples written.
// Stereo to mono sums each half with integer truncation, (a/2)+(b/2).
// Mono to stereo duplicates each sample. Equal counts copy.
func ConvertChannels(dst, src []int16, srcChannels, dstChannels int) int {
	switch {
	case srcChannels == 2 && dstChannels == 1:
		frames := len(src) / 2
		if frames > len(dst) {
			frames = len(dst)
		}
		for i := 0; i < frames; i++ {
			dst[i] = src[i*2]/2 + src[i*2+1]/2
		}
		return frames
	case srcChannels == 1 && dstChannels == 2:
		frames := len(src)
		if frames*2 > len(dst) {
			frames = len(dst) / 2
		}
		for i := 0; i < frames; i++ {
			dst[i*2] = src[i]
			dst[i*2+1] = src[i]
		}
		return frames * 2
	default:
		return copy(dst, src)
	}
}

// ProcessInto converts src from srcFormat to dstFormat into dst and returns
// the number of samples written. ctx may be nil when the rates match.
func ProcessInto(ctx *Context, dst, src []int16, srcFormat, dstFormat audio.Format) int {
	if ctx == nil {
		return ConvertChannels(dst, src, srcFormat.Channels, dstFormat.Channels)
	}

	input := src
	if srcFormat.Channels != dstFormat.Channels {
		size := len(src) * dstFormat.Channels / srcFormat.Channels
		if cap(ctx.scratch) < size {
			ctx.scratch = make([]int16, size)
		}
		ctx.scratch = ctx.scratch[:size]
		n := ConvertChannels(ctx.scratch, src, srcFormat.Channels, dstFormat.Channels)
		input = ctx.scratch[:n]
	}

	return ctx.engine.Resample(input, dst)
}

// Process converts src and returns a new frame of at most
// NumDestinationSamples samples, trimmed to whole destination frames
func Process(ctx *Context, src []int16, srcFormat, dstFormat audio.Format) audio.Frame {
	dst := make(audio.Frame, NumDestinationSamples(len(src), srcFormat, dstFormat))
	n := ProcessInto(ctx, dst, src, srcFormat, dstFormat)
	return dst[:n]
}

func (c *Context) String() string {
	return fmt.Sprintf("%s -> %s", c.src, c.dst)
}
