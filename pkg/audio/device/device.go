// ABOUTME: Audio device collaborator interfaces
// ABOUTME: Device descriptions, format queries and the provider contract for capture/render
package device

import (
	"errors"
	"io"
	"math"
	"strings"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

var (
	// ErrUnsupported is returned by providers that cannot serve a direction
	ErrUnsupported = errors.New("audio direction not supported by backend")
	// ErrNoDevice is returned when no device matches a lookup
	ErrNoDevice = errors.New("no such audio device")
)

// Mode selects capture or render devices
type Mode int

const (
	ModeInput Mode = iota
	ModeOutput
)

func (m Mode) String() string {
	if m == ModeInput {
		return "input"
	}
	return "output"
}

// Info describes one capture or render endpoint. Devices are referenced by
// name; Info values carry no handle to the backend.
type Info struct {
	Name        string
	IsDefault   bool
	MinChannels int
	MaxChannels int
	SampleRates []int
}

// IsFormatSupported reports whether the device accepts f as-is
func (i Info) IsFormatSupported(f audio.Format) bool {
	if !f.IsValid() || f.SampleType != audio.SignedInt || f.ByteOrder != audio.LittleEndian {
		return false
	}
	if f.Channels < i.MinChannels || f.Channels > i.MaxChannels {
		return false
	}
	for _, r := range i.SampleRates {
		if r == f.SampleRate {
			return true
		}
	}
	return false
}

// NearestFormat returns the supported format closest to f
func (i Info) NearestFormat(f audio.Format) audio.Format {
	nearest := f
	nearest.SampleSize = 16
	nearest.SampleType = audio.SignedInt
	nearest.ByteOrder = audio.LittleEndian

	if nearest.Channels < i.MinChannels {
		nearest.Channels = i.MinChannels
	}
	if nearest.Channels > i.MaxChannels {
		nearest.Channels = i.MaxChannels
	}

	best := -1
	for _, r := range i.SampleRates {
		if best < 0 || math.Abs(float64(r-f.SampleRate)) < math.Abs(float64(best-f.SampleRate)) {
			best = r
		}
	}
	if best > 0 {
		nearest.SampleRate = best
	}
	return nearest
}

// SupportedSampleRates lists the rates the device accepts
func (i Info) SupportedSampleRates() []int {
	return i.SampleRates
}

// Stream is an open device stream
type Stream interface {
	Start() error
	Close() error
	// BufferedBytes is the amount of audio accepted but not yet played
	BufferedBytes() int
}

// Provider is the platform audio subsystem. Capture handlers and render
// readers are invoked on backend threads and must not block.
type Provider interface {
	Devices(mode Mode) ([]Info, error)
	DefaultDevice(mode Mode) (Info, error)
	// OpenInput delivers captured little-endian PCM to handler in chunks of about bufferBytes
	OpenInput(dev Info, f audio.Format, bufferBytes int, handler func(data []byte)) (Stream, error)
	// OpenOutput pulls PCM from src, keeping about bufferBytes queued
	OpenOutput(dev Info, f audio.Format, bufferBytes int, src io.Reader) (Stream, error)
	Close() error
}

// Find looks a device up by name. Names are compared after trimming
// whitespace; an empty name selects the default device.
func Find(p Provider, mode Mode, name string) (Info, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return p.DefaultDevice(mode)
	}
	devices, err := p.Devices(mode)
	if err != nil {
		return Info{}, err
	}
	for _, d := range devices {
		if strings.TrimSpace(d.Name) == name {
			return d, nil
		}
	}
	return Info{}, ErrNoDevice
}

// Names returns the device names for mode
func Names(p Provider, mode Mode) ([]string, error) {
	devices, err := p.Devices(mode)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}
