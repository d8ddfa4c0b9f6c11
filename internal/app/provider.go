// ABOUTME: Audio backend selection
// ABOUTME: Prefers PortAudio for full duplex and falls back to oto output only
package app

import (
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/sirupsen/logrus"
)

// NewProvider opens the configured audio backend. Without PortAudio the
// client can still listen through oto but cannot capture.
func NewProvider(cfg config.AudioConfig) device.Provider {
	if cfg.Backend == "portaudio" {
		p, err := device.NewPortAudioProvider()
		if err == nil {
			return p
		}
		logrus.WithFields(logrus.Fields{
			"function": "NewProvider",
			"error":    err.Error(),
		}).Warn("PortAudio unavailable, falling back to oto output")
	}
	return device.NewOtoProvider(cfg.OtoSampleRate, cfg.OtoChannels)
}
