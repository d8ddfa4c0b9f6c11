// ABOUTME: Voice client status queries
// ABOUTME: Loudness, clip timer, buffer depths and counters for UIs and tests
package voice

import (
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
)

// Stats is a snapshot of client state
type Stats struct {
	InputDevice  string
	OutputDevice string
	InputFormat  audio.Format
	OutputFormat audio.Format

	Muted        bool
	StereoInput  bool
	NoiseGate    bool
	EchoLocally  bool
	EchoToServer bool
	SourceInject bool
	ClientReverb bool

	Sequence          uint16
	InputLoudness     float32
	TimeSinceLastClip float32

	OutputBufferFrames int
	InputRingMsecs     float32
	OutputMsecs        float32

	PacketsSent      int
	BufferGrowths    int
	UnfulfilledReads int

	Reverb reverb.Provenance
	Jitter jitter.Stats
}

// Stats returns a snapshot of the client state
func (c *Client) Stats() Stats {
	jitterStats := c.stream.Stats()
	provenance := c.reverb.Active()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		InputDevice:        c.inputDeviceName,
		OutputDevice:       c.outputDeviceName,
		InputFormat:        c.inputFormat,
		OutputFormat:       c.outputFormat,
		Muted:              c.muted,
		StereoInput:        c.stereoInput,
		NoiseGate:          c.noiseGateEnabled,
		EchoLocally:        c.echoLocally,
		EchoToServer:       c.echoToServer,
		SourceInject:       c.sourceInject,
		ClientReverb:       c.clientReverb,
		Sequence:           c.seq,
		InputLoudness:      c.lastLoudness,
		TimeSinceLastClip:  c.timeSinceLastClip,
		OutputBufferFrames: c.outputBufferFrames,
		InputRingMsecs:     c.inputRingMsecsLocked(),
		OutputMsecs:        c.outputMsecsLocked(),
		PacketsSent:        c.packetsSent,
		BufferGrowths:      c.bufferGrowths,
		UnfulfilledReads:   c.renderer.UnfulfilledReads(),
		Reverb:             provenance,
		Jitter:             jitterStats,
	}
}

// InputLoudness is the mean absolute sample value of the last sent frame,
// 0 when it was gated or muted
func (c *Client) InputLoudness() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLoudness
}

// TimeSinceLastClip is seconds since a clipped input frame, or -1 before the first one
func (c *Client) TimeSinceLastClip() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeSinceLastClip
}

// OutputBufferSizeFrames returns the output sink size in network frames
func (c *Client) OutputBufferSizeFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputBufferFrames
}

// InputRingBufferMsecsAvailable is the captured audio waiting to be packetized
func (c *Client) InputRingBufferMsecsAvailable() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputRingMsecsLocked()
}

// AudioOutputMsecsUnplayed is the audio the output device holds but has not played
func (c *Client) AudioOutputMsecsUnplayed() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputMsecsLocked()
}

func (c *Client) inputRingMsecsLocked() float32 {
	if c.in == nil {
		return 0
	}
	return samplesToMsecs(c.inputRing.Available(), c.inputFormat)
}

func (c *Client) outputMsecsLocked() float32 {
	if c.out == nil {
		return 0
	}
	return samplesToMsecs(c.out.stream.BufferedBytes()/audio.SampleBytes, c.outputFormat)
}

func samplesToMsecs(samples int, f audio.Format) float32 {
	if f.Channels == 0 || f.SampleRate == 0 {
		return 0
	}
	return float32(samples) / float32(f.Channels) / float32(f.SampleRate) * 1000
}
