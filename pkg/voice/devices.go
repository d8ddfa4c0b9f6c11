// ABOUTME: Device queries and local injection for the voice client
// ABOUTME: Lists devices, reports the active ones and plays local clips
package voice

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/effects"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/sirupsen/logrus"
)

// DeviceNames lists the device names for a direction
func (c *Client) DeviceNames(mode device.Mode) ([]string, error) {
	return device.Names(c.provider, mode)
}

// DefaultDeviceName returns the system default device for a direction, or
// an empty string when there is none
func (c *Client) DefaultDeviceName(mode device.Mode) string {
	dev, err := c.provider.DefaultDevice(mode)
	if err != nil {
		return ""
	}
	return dev.Name
}

// InputDeviceName returns the active capture device, empty when inactive
func (c *Client) InputDeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputDeviceName
}

// OutputDeviceName returns the active render device, empty when inactive
func (c *Client) OutputDeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputDeviceName
}

// InputFormat returns the negotiated capture format
func (c *Client) InputFormat() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputFormat
}

// OutputFormat returns the negotiated render format
func (c *Client) OutputFormat() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputFormat
}

// Injection is a clip playing on the output device independently of the
// received stream
type Injection struct {
	stream device.Stream
	ring   *device.Ring
}

// Close stops the clip
func (i *Injection) Close() error {
	return i.stream.Close()
}

// Remaining returns the number of device samples not yet played
func (i *Injection) Remaining() int {
	return i.ring.Available()
}

// OutputLocalInjector plays clip, 24kHz PCM in mono or stereo, on the
// current output device with volume as linear gain.
func (c *Client) OutputLocalInjector(clip []int16, stereo bool, volume float64) (*Injection, error) {
	gain, err := effects.NewGain(volume)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return nil, fmt.Errorf("%w: no output device", ErrDeviceUnavailable)
	}

	channels := 1
	if stereo {
		channels = 2
	}
	src := audio.NetworkFormat(channels)
	format, ok := audio.Negotiate(src, out.dev)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormatUnsupported, out.dev.Name)
	}

	ctx, err := resample.ForFormats(src, format)
	if err != nil {
		return nil, err
	}
	samples := resample.Process(ctx, clip, src, format)
	gain.Render(samples)

	ring := device.NewRing(len(samples))
	ring.Write(samples)

	stream, err := c.provider.OpenOutput(out.dev, format, 0, device.NewRingReader(ring))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Client.OutputLocalInjector",
		"device":   out.dev.Name,
		"format":   format.String(),
		"samples":  len(samples),
	}).Debug("Playing local injection")
	return &Injection{stream: stream, ring: ring}, nil
}
