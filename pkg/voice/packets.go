// ABOUTME: Inbound mixer packets and outbound control packets
// ABOUTME: Routes mixed audio into the received stream and environment state into reverb
package voice

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// HandlePacket processes one binary packet from the mixer. Mixed audio is
// only admitted while an output device is active.
func (c *Client) HandlePacket(data []byte) error {
	t, payload, err := protocol.ParseHeader(data)
	if err != nil {
		return err
	}

	switch t {
	case protocol.PacketMixedAudio:
		mixed, err := protocol.DecodeMixedAudio(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.out != nil {
			c.stream.WriteAudio(mixed.Sequence, mixed.Samples)
		}

	case protocol.PacketMixedSilentFrame:
		silent, err := protocol.DecodeMixedSilentFrame(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.out != nil {
			c.stream.WriteSilence(silent.Sequence, int(silent.SampleCount))
		}

	case protocol.PacketAudioEnvironment:
		env, err := protocol.DecodeEnvironment(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if env != c.zone {
			logrus.WithFields(logrus.Fields{
				"function":    "Client.HandlePacket",
				"has_reverb":  env.HasReverb,
				"reverb_time": env.ReverbTime,
				"wet_level":   env.WetLevel,
			}).Debug("Audio environment changed")
		}
		c.zone = env
		c.refreshReverbLocked()

	default:
		return fmt.Errorf("%w: %s from mixer", protocol.ErrUnknownPacket, t)
	}
	return nil
}

// SendMuteEnvironmentPacket asks the mixer to mute everyone around the
// listener's current position
func (c *Client) SendMuteEnvironmentPacket() error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil || !transport.IsConnected() {
		return protocol.ErrNotConnected
	}

	position, _ := c.pose()
	packet := protocol.MuteEnvironment{
		Position: position,
		Radius:   protocol.MuteEnvironmentRadius,
	}.Encode()
	return transport.Send(packet)
}
