// ABOUTME: MP3 clip decoder
// ABOUTME: Fully decodes short MP3 sound clips for local injection
package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

// Clip is a decoded sound held in memory
type Clip struct {
	Samples audio.Frame
	Format  audio.Format
}

// DecodeMP3 reads an entire MP3 stream. go-mp3 always yields 16-bit stereo.
func DecodeMP3(r io.Reader) (*Clip, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	format := audio.NetworkFormat(2).WithSampleRate(decoder.SampleRate())
	pcm, err := NewPCM(format)
	if err != nil {
		return nil, err
	}
	samples, err := pcm.Decode(data)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "DecodeMP3",
		"format":   format.String(),
		"samples":  len(samples),
	}).Debug("Decoded mp3 clip")

	return &Clip{Samples: samples, Format: format}, nil
}

// LoadMP3 decodes the MP3 file at path
func LoadMP3(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open clip: %w", err)
	}
	defer f.Close()
	return DecodeMP3(f)
}

// Duration returns the clip length in seconds
func (c *Clip) Duration() float64 {
	if c.Format.SampleRate == 0 || c.Format.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Format.Channels) / float64(c.Format.SampleRate)
}

// Mono returns a single-channel copy of the clip
func (c *Clip) Mono() *Clip {
	if c.Format.Channels == 1 {
		return c
	}
	mono := make(audio.Frame, len(c.Samples)/2)
	resample.ConvertChannels(mono, c.Samples, 2, 1)
	return &Clip{Samples: mono, Format: c.Format.WithChannels(1)}
}

// ToNetwork returns the clip converted to the network sample rate, keeping
// its channel count
func (c *Clip) ToNetwork() (*Clip, error) {
	dst := c.Format.WithSampleRate(audio.NetworkSampleRate)
	ctx, err := resample.ForFormats(c.Format, dst)
	if err != nil {
		return nil, err
	}
	return &Clip{Samples: resample.Process(ctx, c.Samples, c.Format, dst), Format: dst}, nil
}
