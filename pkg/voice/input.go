// ABOUTME: Capture path of the voice client
// ABOUTME: Conditions and buffers device input, packetizes network frames for the mixer
package voice

import (
	"fmt"
	"math"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/effects"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// InputCallbackBytes is the capture buffer size for f: one network frame's
// worth of device audio divided by CallbackAcceleratorRatio, in whole sample frames.
func InputCallbackBytes(f audio.Format) int {
	frameBytes := f.BytesPerFrame()
	if frameBytes == 0 {
		return 0
	}
	bytes := float64(audio.NetworkFrameBytesPerChannel*f.Channels) *
		float64(f.SampleRate) / audio.NetworkSampleRate / CallbackAcceleratorRatio
	return int(math.Round(bytes/float64(frameBytes))) * frameBytes
}

// inputSamplesPerFrame is the device sample count that becomes one network
// frame of desired, in whole sample frames of f
func inputSamplesPerFrame(desired, f audio.Format) int {
	perChannel := math.Round(float64(audio.NetworkFrameSamplesPerChannel) *
		float64(f.SampleRate) / float64(desired.SampleRate))
	return int(perChannel) * f.Channels
}

// SwitchInputDevice reopens capture on the named device, or on the default
// device when name is empty. On failure input stays inactive.
func (c *Client) SwitchInputDevice(name string) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.detachInput()

	dev, err := device.Find(c.provider, device.ModeInput, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	desired := c.desiredInput
	c.mu.Unlock()

	format, ok := audio.Negotiate(desired, dev)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Client.SwitchInputDevice",
			"device":   dev.Name,
			"desired":  desired.String(),
		}).Warn("Input device does not support a usable format")
		return fmt.Errorf("%w: %s", ErrFormatUnsupported, dev.Name)
	}

	toNetwork, err := resample.ForFormats(format, desired)
	if err != nil {
		return err
	}

	path := &inputPath{
		dev:           dev,
		callbackBytes: InputCallbackBytes(format),
		samples:       make([]int16, inputSamplesPerFrame(desired, format)),
	}

	c.mu.Lock()
	c.inputFormat = format
	c.inputToNetwork = toNetwork
	c.inputRing.Resize(len(path.samples) * InputRingFrames)
	c.tone = effects.NewToneGenerator(format.SampleRate)
	c.loopbackResampler = nil
	c.loopbackReady = false
	c.loopbackFailed = false
	c.in = path
	c.mu.Unlock()

	stream, err := c.provider.OpenInput(dev, format, path.callbackBytes, func(data []byte) {
		c.handleInput(path, data)
	})
	if err != nil {
		c.detachInput()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	path.stream = stream
	c.mu.Unlock()

	if err := stream.Start(); err != nil {
		c.detachInput()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	c.inputDeviceName = dev.Name
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "Client.SwitchInputDevice",
		"device":         dev.Name,
		"format":         format.String(),
		"callback_bytes": path.callbackBytes,
		"frame_samples":  len(path.samples),
	}).Info("Audio input started")
	return nil
}

// detachInput stops capture. The stream is closed without holding mu so a
// backend waiting on an in-flight callback cannot deadlock.
func (c *Client) detachInput() {
	c.mu.Lock()
	path := c.in
	c.in = nil
	c.inputDeviceName = ""
	c.mu.Unlock()

	if path != nil && path.stream != nil {
		if err := path.stream.Close(); err != nil {
			logrus.WithError(err).Debug("Failed to close input stream")
		}
	}
	c.inputRing.Reset()
}

// handleInput is the capture callback. The capture is conditioned in the
// device format before it reaches the local echo and the input ring.
func (c *Client) handleInput(path *inputPath, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in != path {
		return
	}

	n := len(data) / audio.SampleBytes
	if cap(c.inputScratch) < n {
		c.inputScratch = make([]int16, n)
	}
	samples := c.inputScratch[:n]
	audio.BytesToSamples(samples, data)
	if !c.muted {
		c.conditionCaptureLocked(samples)
	}

	c.localEchoLocked(samples)
	c.inputRing.Write(samples)
	c.packetizeLocked(path)
}

// conditionCaptureLocked applies input gain and source injection to device
// samples in place
func (c *Client) conditionCaptureLocked(samples []int16) {
	if c.inputGainEnabled {
		c.inputGain.Render(samples)
	}
	if !c.sourceInject {
		return
	}
	channels := c.inputFormat.Channels
	if c.toneSource {
		c.tone.Render(samples, channels)
	} else if c.noiseSource {
		c.noise.Render(samples, channels)
	}
	c.sourceGain.Render(samples)
}

// localEchoLocked plays conditioned input on the loopback sink when local
// echo or local-only reverb is wanted
func (c *Client) localEchoLocked(in []int16) {
	out := c.out
	hasLocalReverb := c.reverbActiveLocked() && !c.echoToServer
	if c.muted || out == nil || (!c.echoLocally && !hasLocalReverb) {
		return
	}
	if out.loopback == nil || c.loopbackFailed {
		return
	}

	if !c.loopbackReady {
		ctx, err := resample.ForFormats(c.inputFormat, c.outputFormat)
		if err != nil {
			// stays off until the next device switch
			c.loopbackFailed = true
			logrus.WithError(err).Warn("Local echo unavailable")
			return
		}
		c.loopbackResampler = ctx
		c.loopbackReady = true
	}

	samples := resample.Process(c.loopbackResampler, in, c.inputFormat, c.outputFormat)
	if hasLocalReverb {
		c.refreshReverbLocked()
		c.reverb.Apply(reverb.TargetLocal, samples, c.outputFormat.Channels, !c.echoLocally)
	}

	if !out.loopbackStarted {
		out.loopbackStarted = true
		if err := out.loopback.Start(); err != nil {
			logrus.WithError(err).Warn("Failed to start local echo output")
			return
		}
	}
	out.loopbackRing.Write(samples)
}

// packetizeLocked drains whole network frames from the input ring
func (c *Client) packetizeLocked(path *inputPath) {
	required := len(path.samples)
	if required == 0 {
		return
	}
	frame := c.networkFrame[:audio.NetworkFrameSamplesPerChannel*c.desiredInput.Channels]

	for c.inputRing.Available() >= required {
		var loudness float32
		if c.muted {
			c.inputRing.Shift(required)
			c.timeSinceLastClip = 0
			clear(frame)
		} else {
			clear(frame)
			if c.timeSinceLastClip >= 0 {
				c.timeSinceLastClip += audio.NetworkFrameSeconds
			}
			c.inputRing.Read(path.samples)
			resample.ProcessInto(c.inputToNetwork, frame, path.samples, c.inputFormat, c.desiredInput)
			loudness = c.conditionLocked(frame)
		}
		c.lastLoudness = loudness

		c.sendLocked(frame, loudness)
		c.seq++
	}
}

// conditionLocked runs the noise gate over a network frame and returns its
// loudness. Injected sources bypass the gate.
func (c *Client) conditionLocked(frame []int16) float32 {
	channels := c.desiredInput.Channels

	if channels == 1 && !c.sourceInject && c.noiseGateEnabled {
		c.gate.GateSamples(frame)
		if c.gate.ClippedInLastFrame() {
			c.timeSinceLastClip = 0
		}
		return c.gate.LastLoudness()
	}

	loudness, clipped := effects.Loudness(frame)
	if clipped {
		c.timeSinceLastClip = 0
	}
	return loudness
}

// sendLocked hands one frame to the mixer. Silent frames carry only the
// sample count.
func (c *Client) sendLocked(frame []int16, loudness float32) {
	if c.transport == nil || !c.transport.IsConnected() {
		return
	}
	position, orientation := c.pose()

	var packet []byte
	if loudness == 0 {
		packet = protocol.SilentFrame{
			Sequence:    c.seq,
			SampleCount: uint16(len(frame)),
			Position:    position,
			Orientation: orientation,
		}.Encode()
	} else {
		packet = protocol.MicrophoneAudio{
			Echo:        c.echoToServer,
			Sequence:    c.seq,
			Stereo:      c.desiredInput.Channels == 2,
			Position:    position,
			Orientation: orientation,
			Samples:     frame,
		}.Encode()
	}

	if err := c.transport.Send(packet); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.send",
			"sequence": c.seq,
			"error":    err.Error(),
		}).Debug("Failed to send audio packet")
		return
	}
	c.packetsSent++
}
