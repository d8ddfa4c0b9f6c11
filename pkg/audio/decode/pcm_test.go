// ABOUTME: Tests for the PCM decoder
// ABOUTME: Covers format validation and partial frame handling
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

func TestNewPCMRejectsFormats(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
	}{
		{"24-bit", audio.Format{SampleRate: 48000, Channels: 2, SampleSize: 24}},
		{"float", audio.Format{SampleRate: 48000, Channels: 2, SampleSize: 16, SampleType: audio.Float}},
		{"big endian", audio.Format{SampleRate: 48000, Channels: 2, SampleSize: 16, ByteOrder: audio.BigEndian}},
		{"surround", audio.Format{SampleRate: 48000, Channels: 6, SampleSize: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPCM(tt.format); err == nil {
				t.Errorf("expected %s to be rejected", tt.name)
			}
		})
	}
}

func TestPCMDecodeDropsPartialFrame(t *testing.T) {
	dec, err := NewPCM(audio.NetworkFormat(2))
	if err != nil {
		t.Fatalf("NewPCM failed: %v", err)
	}
	defer dec.Close()

	// Three samples: the last stereo frame is incomplete
	data := []byte{0x01, 0x00, 0xff, 0xff, 0x10, 0x00}
	samples, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0] != 1 || samples[1] != -1 {
		t.Errorf("unexpected samples %v", samples)
	}
}
