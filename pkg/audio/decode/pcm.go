// ABOUTME: PCM audio decoder
// ABOUTME: Decodes little-endian 16-bit PCM payloads into sample frames
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	channels int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.SampleSize != 16 {
		return nil, fmt.Errorf("unsupported sample size: %d (supported: 16)", format.SampleSize)
	}
	if format.SampleType != audio.SignedInt || format.ByteOrder != audio.LittleEndian {
		return nil, fmt.Errorf("unsupported sample encoding for %s", format)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", format.Channels)
	}

	return &PCMDecoder{channels: format.Channels}, nil
}

// Decode converts PCM bytes to samples. A trailing partial frame is dropped.
func (d *PCMDecoder) Decode(data []byte) (audio.Frame, error) {
	numSamples := len(data) / audio.SampleBytes
	numSamples -= numSamples % d.channels
	samples := make(audio.Frame, numSamples)
	audio.BytesToSamples(samples, data[:numSamples*audio.SampleBytes])
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
