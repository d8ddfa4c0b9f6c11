//go:build portaudio

// ABOUTME: PortAudio capture and render backend
// ABOUTME: Enumerates devices and runs callback streams for both directions
package device

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// PortAudioProvider is a Provider backed by PortAudio
type PortAudioProvider struct{}

// NewPortAudioProvider initializes PortAudio
func NewPortAudioProvider() (Provider, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioProvider{}, nil
}

func toInfo(d *portaudio.DeviceInfo, mode Mode, isDefault bool) Info {
	maxCh := d.MaxOutputChannels
	if mode == ModeInput {
		maxCh = d.MaxInputChannels
	}
	if maxCh > 2 {
		maxCh = 2
	}
	return Info{
		Name:        d.Name,
		IsDefault:   isDefault,
		MinChannels: 1,
		MaxChannels: maxCh,
		SampleRates: []int{int(d.DefaultSampleRate)},
	}
}

func defaultInfo(mode Mode) (*portaudio.DeviceInfo, error) {
	if mode == ModeInput {
		return portaudio.DefaultInputDevice()
	}
	return portaudio.DefaultOutputDevice()
}

// Devices lists devices with at least one channel in mode
func (p *PortAudioProvider) Devices(mode Mode) ([]Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	def, _ := defaultInfo(mode)

	var infos []Info
	for _, d := range devices {
		channels := d.MaxOutputChannels
		if mode == ModeInput {
			channels = d.MaxInputChannels
		}
		if channels == 0 {
			continue
		}
		infos = append(infos, toInfo(d, mode, def != nil && d.Name == def.Name))
	}
	return infos, nil
}

// DefaultDevice returns the system default device for mode
func (p *PortAudioProvider) DefaultDevice(mode Mode) (Info, error) {
	d, err := defaultInfo(mode)
	if err != nil {
		return Info{}, fmt.Errorf("no default %s device: %w", mode, err)
	}
	return toInfo(d, mode, true), nil
}

func (p *PortAudioProvider) lookup(dev Info) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == dev.Name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDevice, dev.Name)
}

// OpenInput opens a capture callback stream
func (p *PortAudioProvider) OpenInput(dev Info, f audio.Format, bufferBytes int, handler func([]byte)) (Stream, error) {
	d, err := p.lookup(dev)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(d, nil)
	params.SampleRate = float64(f.SampleRate)
	params.Input.Channels = f.Channels
	params.FramesPerBuffer = bufferBytes / f.BytesPerFrame()

	buf := make([]byte, 0, bufferBytes)
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		if cap(buf) < len(in)*audio.SampleBytes {
			buf = make([]byte, len(in)*audio.SampleBytes)
		}
		buf = buf[:len(in)*audio.SampleBytes]
		audio.SamplesToBytes(buf, in)
		handler(buf)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "PortAudioProvider.OpenInput",
		"device":   dev.Name,
		"format":   f.String(),
		"frames":   params.FramesPerBuffer,
	}).Debug("Opened capture stream")

	return &paStream{stream: stream}, nil
}

// OpenOutput opens a render callback stream pulling from src
func (p *PortAudioProvider) OpenOutput(dev Info, f audio.Format, bufferBytes int, src io.Reader) (Stream, error) {
	d, err := p.lookup(dev)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, d)
	params.SampleRate = float64(f.SampleRate)
	params.Output.Channels = f.Channels
	params.FramesPerBuffer = bufferBytes / f.BytesPerFrame()

	s := &paStream{bufferBytes: int64(bufferBytes)}
	var buf []byte
	stream, err := portaudio.OpenStream(params, func(out []int16) {
		if cap(buf) < len(out)*audio.SampleBytes {
			buf = make([]byte, len(out)*audio.SampleBytes)
		}
		buf = buf[:len(out)*audio.SampleBytes]
		n, _ := io.ReadFull(src, buf)
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		audio.BytesToSamples(out, buf)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	s.stream = stream

	logrus.WithFields(logrus.Fields{
		"function": "PortAudioProvider.OpenOutput",
		"device":   dev.Name,
		"format":   f.String(),
		"frames":   params.FramesPerBuffer,
	}).Debug("Opened render stream")

	return s, nil
}

// Close terminates PortAudio
func (p *PortAudioProvider) Close() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream      *portaudio.Stream
	bufferBytes int64
	started     atomic.Bool
}

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.started.Store(true)
	return nil
}

func (s *paStream) Close() error {
	if s.started.Load() {
		if err := s.stream.Stop(); err != nil {
			return err
		}
	}
	return s.stream.Close()
}

// BufferedBytes approximates the device queue with the buffer size requested at open
func (s *paStream) BufferedBytes() int {
	if !s.started.Load() {
		return 0
	}
	return int(s.bufferBytes)
}
