package voice

import (
	"errors"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
)

var (
	// ErrFormatUnsupported means negotiation found no usable format for a device
	ErrFormatUnsupported = errors.New("audio format not supported by device")
	// ErrResamplerCreation means a conversion between two rates could not be set up
	ErrResamplerCreation = resample.ErrCreation
	// ErrDeviceUnavailable means a device could not be found, opened or started
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)
