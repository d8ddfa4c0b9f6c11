package voice

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/reverb"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/stretchr/testify/require"
)

var errOpenFailed = errors.New("open failed")

type fakeStream struct {
	started  bool
	closed   bool
	buffered int
}

func (s *fakeStream) Start() error       { s.started = true; return nil }
func (s *fakeStream) Close() error       { s.closed = true; return nil }
func (s *fakeStream) BufferedBytes() int { return s.buffered }

type openedOutput struct {
	dev         device.Info
	format      audio.Format
	bufferBytes int
	src         io.Reader
	stream      *fakeStream
}

// fakeProvider records opened streams and lets tests drive capture callbacks
type fakeProvider struct {
	mu        sync.Mutex
	inputs    []device.Info
	outputs   []device.Info
	failInput bool

	handler     func([]byte)
	inputFormat audio.Format
	inputBytes  int
	inputStream *fakeStream

	opened []openedOutput
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		inputs: []device.Info{{
			Name: "Mic", IsDefault: true, MinChannels: 1, MaxChannels: 2, SampleRates: []int{24000},
		}},
		outputs: []device.Info{{
			Name: "Speakers", IsDefault: true, MinChannels: 1, MaxChannels: 2, SampleRates: []int{24000},
		}},
	}
}

func (p *fakeProvider) Devices(mode device.Mode) ([]device.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mode == device.ModeInput {
		return append([]device.Info(nil), p.inputs...), nil
	}
	return append([]device.Info(nil), p.outputs...), nil
}

func (p *fakeProvider) DefaultDevice(mode device.Mode) (device.Info, error) {
	devices, _ := p.Devices(mode)
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	return device.Info{}, device.ErrNoDevice
}

func (p *fakeProvider) OpenInput(dev device.Info, f audio.Format, bufferBytes int, handler func([]byte)) (device.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failInput {
		return nil, errOpenFailed
	}
	p.handler = handler
	p.inputFormat = f
	p.inputBytes = bufferBytes
	p.inputStream = &fakeStream{}
	return p.inputStream, nil
}

func (p *fakeProvider) OpenOutput(dev device.Info, f audio.Format, bufferBytes int, src io.Reader) (device.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeStream{}
	p.opened = append(p.opened, openedOutput{dev: dev, format: f, bufferBytes: bufferBytes, src: src, stream: s})
	return s, nil
}

func (p *fakeProvider) Close() error { return nil }

// feed delivers samples through the capture callback
func (p *fakeProvider) feed(samples []int16) {
	data := make([]byte, len(samples)*audio.SampleBytes)
	audio.SamplesToBytes(data, samples)
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	handler(data)
}

// lastOutputs returns the render and local echo streams of the latest output setup
func (p *fakeProvider) lastOutputs(t *testing.T) (render, loopback openedOutput) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.GreaterOrEqual(t, len(p.opened), 2)
	return p.opened[len(p.opened)-2], p.opened[len(p.opened)-1]
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	packets   [][]byte
}

func (tr *fakeTransport) Send(packet []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.packets = append(tr.packets, append([]byte(nil), packet...))
	return nil
}

func (tr *fakeTransport) IsConnected() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.connected
}

func (tr *fakeTransport) sent() [][]byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([][]byte(nil), tr.packets...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// constKernel returns a fixed wet pair for every input sample
type constKernel struct {
	l, r float32
}

func (k *constKernel) Process(float32) (float32, float32) { return k.l, k.r }
func (k *constKernel) SetOptions(reverb.Options)          {}

func constFactory(int, reverb.Options) reverb.Kernel {
	return &constKernel{l: 100, r: -100}
}

func constant(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// newTestClient builds a started client with gate off and a connected transport
func newTestClient(t *testing.T, configure func(*Options, *fakeProvider)) (*Client, *fakeProvider, *fakeTransport) {
	t.Helper()
	p := newFakeProvider()
	tr := &fakeTransport{connected: true}
	clock := &fakeClock{t: time.Unix(1000, 0)}

	opts := DefaultOptions()
	opts.NoiseGate = false
	opts.Now = clock.now
	opts.ReverbFactory = constFactory
	opts.Pose = func() (protocol.Vec3, protocol.Quat) {
		return protocol.Vec3{1, 2, 3}, protocol.IdentityQuat
	}
	if configure != nil {
		configure(&opts, p)
	}

	c := NewClient(p, tr, opts)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)
	return c, p, tr
}

func decodePacket(t *testing.T, data []byte) (protocol.PacketType, []byte) {
	t.Helper()
	typ, payload, err := protocol.ParseHeader(data)
	require.NoError(t, err)
	return typ, payload
}
