// ABOUTME: Binary audio packet layouts exchanged with the mixer
// ABOUTME: Little-endian encoders and decoders for voice, silence, mixed audio and environment packets
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PacketType identifies a binary packet
type PacketType byte

const (
	// PacketMicrophoneAudioNoEcho carries voice the mixer must not echo back
	PacketMicrophoneAudioNoEcho PacketType = iota + 1
	// PacketMicrophoneAudioWithEcho carries voice the mixer echoes back to the sender
	PacketMicrophoneAudioWithEcho
	// PacketSilentAudioFrame replaces a voice packet when the frame is silent
	PacketSilentAudioFrame
	// PacketMixedAudio is mixed stereo audio from the mixer
	PacketMixedAudio
	// PacketMixedSilentFrame is a silent mixed frame from the mixer
	PacketMixedSilentFrame
	// PacketAudioEnvironment carries the server reverb zone state
	PacketAudioEnvironment
	// PacketMuteEnvironment asks the mixer to mute clients around a position
	PacketMuteEnvironment
)

// PacketVersion is the layout version written after the type byte
const PacketVersion = 1

// HeaderSize is the size of the type and version bytes
const HeaderSize = 2

// MuteEnvironmentRadius is the radius sent with mute-environment packets
const MuteEnvironmentRadius = 50.0

var (
	// ErrShortPacket is returned when a packet ends before its fixed fields
	ErrShortPacket = errors.New("packet too short")
	// ErrUnknownPacket is returned for unrecognized packet types or versions
	ErrUnknownPacket = errors.New("unknown packet")
)

func (t PacketType) String() string {
	switch t {
	case PacketMicrophoneAudioNoEcho:
		return "MicrophoneAudioNoEcho"
	case PacketMicrophoneAudioWithEcho:
		return "MicrophoneAudioWithEcho"
	case PacketSilentAudioFrame:
		return "SilentAudioFrame"
	case PacketMixedAudio:
		return "MixedAudio"
	case PacketMixedSilentFrame:
		return "MixedSilentFrame"
	case PacketAudioEnvironment:
		return "AudioEnvironment"
	case PacketMuteEnvironment:
		return "MuteEnvironment"
	default:
		return fmt.Sprintf("PacketType(%d)", byte(t))
	}
}

// Vec3 is a position in world space
type Vec3 [3]float32

// Quat is an orientation quaternion (x, y, z, w)
type Quat [4]float32

// IdentityQuat is the zero rotation
var IdentityQuat = Quat{0, 0, 0, 1}

// MicrophoneAudio is a voice packet
type MicrophoneAudio struct {
	Echo        bool
	Sequence    uint16
	Stereo      bool
	Position    Vec3
	Orientation Quat
	Samples     []int16
}

// SilentFrame stands in for a voice packet whose frame was silent
type SilentFrame struct {
	Sequence    uint16
	SampleCount uint16
	Position    Vec3
	Orientation Quat
}

// MixedAudio is a frame of mixed audio from the mixer
type MixedAudio struct {
	Sequence uint16
	Samples  []int16
}

// MixedSilentFrame is a silent frame from the mixer
type MixedSilentFrame struct {
	Sequence    uint16
	SampleCount uint16
}

// Environment is the reverb zone the listener is in
type Environment struct {
	HasReverb  bool
	ReverbTime float32
	WetLevel   float32
}

// MuteEnvironment asks the mixer to mute everyone within Radius of Position
type MuteEnvironment struct {
	Position Vec3
	Radius   float32
}

const environmentHasReverb = 1 << 0

// AppendHeader writes the type and version bytes
func AppendHeader(buf []byte, t PacketType) []byte {
	return append(buf, byte(t), PacketVersion)
}

// ParseHeader splits a packet into its type and payload
func ParseHeader(data []byte) (PacketType, []byte, error) {
	if len(data) < HeaderSize {
		return 0, nil, ErrShortPacket
	}
	t := PacketType(data[0])
	if t < PacketMicrophoneAudioNoEcho || t > PacketMuteEnvironment || data[1] != PacketVersion {
		return t, nil, fmt.Errorf("%w: type %d version %d", ErrUnknownPacket, data[0], data[1])
	}
	return t, data[HeaderSize:], nil
}

func appendFloat32(buf []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

func appendVec3(buf []byte, v Vec3) []byte {
	for _, f := range v {
		buf = appendFloat32(buf, f)
	}
	return buf
}

func appendQuat(buf []byte, q Quat) []byte {
	for _, f := range q {
		buf = appendFloat32(buf, f)
	}
	return buf
}

func appendSamples(buf []byte, samples []int16) []byte {
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}

// reader walks a payload, remembering the first short read
type reader struct {
	data []byte
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = ErrShortPacket
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	if b := r.take(4); b != nil {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *reader) vec3() Vec3 {
	return Vec3{r.f32(), r.f32(), r.f32()}
}

func (r *reader) quat() Quat {
	return Quat{r.f32(), r.f32(), r.f32(), r.f32()}
}

func (r *reader) samples() []int16 {
	n := len(r.data) / 2
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(r.data[i*2:]))
	}
	r.data = r.data[n*2:]
	return out
}

// Encode serializes a voice packet
func (p MicrophoneAudio) Encode() []byte {
	t := PacketMicrophoneAudioNoEcho
	if p.Echo {
		t = PacketMicrophoneAudioWithEcho
	}
	buf := make([]byte, 0, HeaderSize+2+1+12+16+len(p.Samples)*2)
	buf = AppendHeader(buf, t)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	stereo := byte(0)
	if p.Stereo {
		stereo = 1
	}
	buf = append(buf, stereo)
	buf = appendVec3(buf, p.Position)
	buf = appendQuat(buf, p.Orientation)
	return appendSamples(buf, p.Samples)
}

// Encode serializes a silent frame packet
func (p SilentFrame) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+4+12+16)
	buf = AppendHeader(buf, PacketSilentAudioFrame)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	buf = binary.LittleEndian.AppendUint16(buf, p.SampleCount)
	buf = appendVec3(buf, p.Position)
	return appendQuat(buf, p.Orientation)
}

// Encode serializes a mixed audio packet
func (p MixedAudio) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+2+len(p.Samples)*2)
	buf = AppendHeader(buf, PacketMixedAudio)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	return appendSamples(buf, p.Samples)
}

// Encode serializes a mixed silent frame packet
func (p MixedSilentFrame) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+4)
	buf = AppendHeader(buf, PacketMixedSilentFrame)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	return binary.LittleEndian.AppendUint16(buf, p.SampleCount)
}

// Encode serializes an environment packet. Reverb fields follow only when set.
func (p Environment) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+1+8)
	buf = AppendHeader(buf, PacketAudioEnvironment)
	if !p.HasReverb {
		return append(buf, 0)
	}
	buf = append(buf, environmentHasReverb)
	buf = appendFloat32(buf, p.ReverbTime)
	return appendFloat32(buf, p.WetLevel)
}

// Encode serializes a mute environment packet
func (p MuteEnvironment) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+16)
	buf = AppendHeader(buf, PacketMuteEnvironment)
	buf = appendVec3(buf, p.Position)
	return appendFloat32(buf, p.Radius)
}

// DecodeMicrophoneAudio parses a voice payload of either echo kind
func DecodeMicrophoneAudio(t PacketType, payload []byte) (MicrophoneAudio, error) {
	r := &reader{data: payload}
	p := MicrophoneAudio{
		Echo:     t == PacketMicrophoneAudioWithEcho,
		Sequence: r.u16(),
		Stereo:   r.u8() != 0,
	}
	p.Position = r.vec3()
	p.Orientation = r.quat()
	if r.err != nil {
		return MicrophoneAudio{}, r.err
	}
	p.Samples = r.samples()
	return p, nil
}

// DecodeSilentFrame parses a silent frame payload
func DecodeSilentFrame(payload []byte) (SilentFrame, error) {
	r := &reader{data: payload}
	p := SilentFrame{Sequence: r.u16(), SampleCount: r.u16()}
	p.Position = r.vec3()
	p.Orientation = r.quat()
	return p, r.err
}

// DecodeMixedAudio parses a mixed audio payload
func DecodeMixedAudio(payload []byte) (MixedAudio, error) {
	r := &reader{data: payload}
	p := MixedAudio{Sequence: r.u16()}
	if r.err != nil {
		return MixedAudio{}, r.err
	}
	p.Samples = r.samples()
	return p, nil
}

// DecodeMixedSilentFrame parses a mixed silent frame payload
func DecodeMixedSilentFrame(payload []byte) (MixedSilentFrame, error) {
	r := &reader{data: payload}
	p := MixedSilentFrame{Sequence: r.u16(), SampleCount: r.u16()}
	return p, r.err
}

// DecodeEnvironment parses an environment payload
func DecodeEnvironment(payload []byte) (Environment, error) {
	r := &reader{data: payload}
	bits := r.u8()
	p := Environment{HasReverb: bits&environmentHasReverb != 0}
	if p.HasReverb {
		p.ReverbTime = r.f32()
		p.WetLevel = r.f32()
	}
	return p, r.err
}

// DecodeMuteEnvironment parses a mute environment payload
func DecodeMuteEnvironment(payload []byte) (MuteEnvironment, error) {
	r := &reader{data: payload}
	p := MuteEnvironment{Position: r.vec3(), Radius: r.f32()}
	return p, r.err
}
