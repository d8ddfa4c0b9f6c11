// ABOUTME: Render path of the voice client
// ABOUTME: Output device setup, received frame processing and starvation driven buffer growth
package voice

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
	"github.com/sirupsen/logrus"
)

// outputFrameSize is the number of device samples one stereo network frame
// becomes at f
func outputFrameSize(f audio.Format) int {
	perChannel := audio.NetworkFrameSamplesPerChannel * f.SampleRate / audio.NetworkSampleRate
	return perChannel * f.Channels
}

// SwitchOutputDevice reopens rendering on the named device, or on the
// default device when name is empty. On failure output stays inactive.
func (c *Client) SwitchOutputDevice(name string) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	dev, findErr := device.Find(c.provider, device.ModeOutput, name)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownOutputLocked()
	if findErr != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, findErr)
	}
	return c.setupOutputLocked(dev)
}

func (c *Client) setupOutputLocked(dev device.Info) error {
	format, ok := audio.Negotiate(c.desiredOutput, dev)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Client.SwitchOutputDevice",
			"device":   dev.Name,
			"desired":  c.desiredOutput.String(),
		}).Warn("Output device does not support a usable format")
		return fmt.Errorf("%w: %s", ErrFormatUnsupported, dev.Name)
	}

	toOutput, err := resample.ForFormats(c.desiredOutput, format)
	if err != nil {
		return err
	}

	frameSize := outputFrameSize(format)
	c.outputFormat = format
	c.loopbackResampler = nil
	c.loopbackReady = false
	c.loopbackFailed = false
	c.reverb.SetSampleRate(format.SampleRate)
	c.stream.SetProcessor(c.processorFor(toOutput, format, frameSize), frameSize)

	bufferBytes := c.outputBufferFrames * frameSize * audio.SampleBytes
	stream, err := c.provider.OpenOutput(dev, format, bufferBytes, c.renderer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	path := &outputPath{
		dev:          dev,
		stream:       stream,
		frameSize:    frameSize,
		loopbackRing: device.NewRing(frameSize * LoopbackRingFrames),
	}
	loopback, err := c.provider.OpenOutput(dev, format, bufferBytes, device.NewRingReader(path.loopbackRing))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.SwitchOutputDevice",
			"device":   dev.Name,
			"error":    err.Error(),
		}).Warn("Local echo output unavailable")
	} else {
		path.loopback = loopback
	}

	c.out = path
	c.outputDeviceName = dev.Name
	c.starve.reset()
	c.renderer.RecentUnfulfilledReads()

	logrus.WithFields(logrus.Fields{
		"function":      "Client.SwitchOutputDevice",
		"device":        dev.Name,
		"format":        format.String(),
		"buffer_frames": c.outputBufferFrames,
		"frame_samples": frameSize,
	}).Info("Audio output started")
	return nil
}

func (c *Client) teardownOutputLocked() {
	out := c.out
	c.out = nil
	c.outputDeviceName = ""
	if out == nil {
		return
	}
	if err := out.stream.Close(); err != nil {
		logrus.WithError(err).Debug("Failed to close output stream")
	}
	if out.loopback != nil {
		if err := out.loopback.Close(); err != nil {
			logrus.WithError(err).Debug("Failed to close local echo stream")
		}
	}
}

// processorFor converts received network frames to the device format and
// applies network reverb. It runs inside stream writes, which HandlePacket
// performs with mu held.
func (c *Client) processorFor(toOutput *resample.Context, format audio.Format, frameSize int) jitter.Processor {
	buf := make([]int16, frameSize)
	return func(network []int16) []int16 {
		n := resample.ProcessInto(toOutput, buf, network, c.desiredOutput, format)
		out := buf[:n]
		if c.reverbActiveLocked() {
			c.refreshReverbLocked()
			c.reverb.Apply(reverb.TargetNetwork, out, format.Channels, false)
		}
		return out
	}
}

// OutputNotify checks the renderer for starvation. Too many unfulfilled
// reads within the detection period grow the output buffer by one frame.
func (c *Client) OutputNotify() {
	recent := c.renderer.RecentUnfulfilledReads()
	if recent == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	settings := c.outputSettings
	if !settings.StarveDetectionEnabled || c.out == nil {
		return
	}
	if !c.starve.tick(c.now(), recent, settings.StarveDetectionPeriod, settings.StarveDetectionThreshold) {
		return
	}

	frames := clampOutputFrames(c.outputBufferFrames + 1)
	if frames == c.outputBufferFrames {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Client.OutputNotify",
		"from":     c.outputBufferFrames,
		"to":       frames,
	}).Info("Output starved, growing buffer")
	c.bufferGrowths++
	c.setOutputBufferSizeLocked(frames)
}

// SetOutputBufferSize changes the output sink size in frames, clamped to
// [MinOutputBufferFrames, MaxOutputBufferFrames], and recreates the sink
func (c *Client) SetOutputBufferSize(frames int) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setOutputBufferSizeLocked(frames)
}

func (c *Client) setOutputBufferSizeLocked(frames int) {
	frames = clampOutputFrames(frames)
	if frames == c.outputBufferFrames {
		return
	}
	c.outputBufferFrames = frames

	out := c.out
	if out == nil {
		return
	}
	c.teardownOutputLocked()
	if err := c.setupOutputLocked(out.dev); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.setOutputBufferSize",
			"device":   out.dev.Name,
			"error":    err.Error(),
		}).Warn("Failed to recreate output")
	}
}
