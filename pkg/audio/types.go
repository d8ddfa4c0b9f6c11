// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats, network frame constants and sample helpers
package audio

import (
	"encoding/binary"
	"fmt"
)

const (
	// NetworkSampleRate is the sample rate of audio on the wire
	NetworkSampleRate = 24000

	// NetworkFrameSamplesPerChannel is the number of samples per channel in one network frame
	NetworkFrameSamplesPerChannel = 256
	NetworkFrameSamplesStereo     = NetworkFrameSamplesPerChannel * 2

	NetworkFrameBytesPerChannel = NetworkFrameSamplesPerChannel * SampleBytes
	NetworkFrameBytesStereo     = NetworkFrameSamplesStereo * SampleBytes

	// SampleBytes is the size of one 16-bit sample
	SampleBytes = 2

	MaxSampleValue = 32767
	MinSampleValue = -32768

	// ClippingThreshold is the sample magnitude (90% of full scale) above which a sample counts as clipped
	ClippingThreshold = MaxSampleValue * 90 / 100
)

// NetworkFrameSeconds is the duration of one network frame
const NetworkFrameSeconds = float32(NetworkFrameSamplesPerChannel) / float32(NetworkSampleRate)

// SampleType describes how sample values are encoded
type SampleType int

const (
	SignedInt SampleType = iota
	UnsignedInt
	Float
)

// ByteOrder of multi-byte samples
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Format describes a PCM stream format. Formats are compared by value.
type Format struct {
	SampleRate int
	Channels   int
	SampleSize int // bits
	SampleType SampleType
	ByteOrder  ByteOrder
}

// NetworkFormat returns the wire format with the given channel count
func NetworkFormat(channels int) Format {
	return Format{
		SampleRate: NetworkSampleRate,
		Channels:   channels,
		SampleSize: 16,
		SampleType: SignedInt,
		ByteOrder:  LittleEndian,
	}
}

// WithChannels returns a copy of f with a different channel count
func (f Format) WithChannels(channels int) Format {
	f.Channels = channels
	return f
}

// WithSampleRate returns a copy of f with a different sample rate
func (f Format) WithSampleRate(rate int) Format {
	f.SampleRate = rate
	return f
}

// IsValid reports whether f can be carried by this pipeline
func (f Format) IsValid() bool {
	return f.SampleRate > 0 && (f.Channels == 1 || f.Channels == 2) && f.SampleSize == 16
}

// BytesPerFrame returns bytes per sample frame (all channels)
func (f Format) BytesPerFrame() int {
	return f.Channels * f.SampleSize / 8
}

// BytesForDuration returns the number of bytes covering usecs microseconds
func (f Format) BytesForDuration(usecs int64) int {
	return int(int64(f.BytesPerFrame()) * int64(f.SampleRate) * usecs / 1000000)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.SampleSize)
}

// Frame is a sequence of interleaved signed 16-bit samples.
// Its length is a multiple of the channel count of the format it belongs to.
type Frame []int16

// BytesToSamples decodes little-endian 16-bit PCM into dst and returns the sample count
func BytesToSamples(dst []int16, src []byte) int {
	n := len(src) / SampleBytes
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return n
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM into dst and returns bytes written
func SamplesToBytes(dst []byte, src []int16) int {
	n := len(src)
	if n*SampleBytes > len(dst) {
		n = len(dst) / SampleBytes
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(src[i]))
	}
	return n * SampleBytes
}

// ClampSample saturates v to the int16 range
func ClampSample(v int) int16 {
	if v > MaxSampleValue {
		return MaxSampleValue
	}
	if v < MinSampleValue {
		return MinSampleValue
	}
	return int16(v)
}
