// ABOUTME: Oto-based render backend
// ABOUTME: One oto context per process; every output stream is a player pulling from a reader
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

const otoDeviceName = "System default (oto)"

// OtoProvider renders through the system default output with oto. oto cannot
// enumerate devices or capture audio, and it allows only one context per
// process, so the context format is fixed when the provider is created.
type OtoProvider struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	channels   int
}

// NewOtoProvider creates a provider whose context runs at sampleRate/channels
func NewOtoProvider(sampleRate, channels int) *OtoProvider {
	return &OtoProvider{sampleRate: sampleRate, channels: channels}
}

func (p *OtoProvider) info() Info {
	return Info{
		Name:        otoDeviceName,
		IsDefault:   true,
		MinChannels: p.channels,
		MaxChannels: p.channels,
		SampleRates: []int{p.sampleRate},
	}
}

// Devices lists the single default output
func (p *OtoProvider) Devices(mode Mode) ([]Info, error) {
	if mode == ModeInput {
		return nil, nil
	}
	return []Info{p.info()}, nil
}

// DefaultDevice returns the default output
func (p *OtoProvider) DefaultDevice(mode Mode) (Info, error) {
	if mode == ModeInput {
		return Info{}, fmt.Errorf("oto: %w", ErrUnsupported)
	}
	return p.info(), nil
}

// OpenInput is not supported by oto
func (p *OtoProvider) OpenInput(Info, audio.Format, int, func([]byte)) (Stream, error) {
	return nil, fmt.Errorf("oto capture: %w", ErrUnsupported)
}

func (p *OtoProvider) context() (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.otoCtx != nil {
		return p.otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   p.sampleRate,
		ChannelCount: p.channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	p.otoCtx = ctx
	logrus.WithFields(logrus.Fields{
		"function":    "OtoProvider.context",
		"sample_rate": p.sampleRate,
		"channels":    p.channels,
	}).Info("Audio output initialized")
	return ctx, nil
}

// OpenOutput creates a player reading from src
func (p *OtoProvider) OpenOutput(dev Info, f audio.Format, bufferBytes int, src io.Reader) (Stream, error) {
	if !p.info().IsFormatSupported(f) {
		return nil, fmt.Errorf("oto cannot render %s", f)
	}
	ctx, err := p.context()
	if err != nil {
		return nil, err
	}

	player := ctx.NewPlayer(src)
	if bufferBytes > 0 {
		player.SetBufferSize(bufferBytes)
	}
	return &otoStream{player: player}, nil
}

// Close suspends the context. oto contexts cannot be destroyed.
func (p *OtoProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.otoCtx != nil {
		return p.otoCtx.Suspend()
	}
	return nil
}

type otoStream struct {
	player *oto.Player
}

func (s *otoStream) Start() error {
	s.player.Play()
	return nil
}

func (s *otoStream) Close() error {
	return s.player.Close()
}

func (s *otoStream) BufferedBytes() int {
	return s.player.BufferedSize()
}
