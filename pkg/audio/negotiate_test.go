package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDevice supports an explicit list of formats and reports the first one as nearest
type fakeDevice struct {
	supported []Format
}

func (d fakeDevice) IsFormatSupported(f Format) bool {
	for _, s := range d.supported {
		if s == f {
			return true
		}
	}
	return false
}

func (d fakeDevice) NearestFormat(f Format) Format {
	if d.IsFormatSupported(f) {
		return f
	}
	for _, s := range d.supported {
		if s.SampleRate == f.SampleRate {
			return s
		}
	}
	if len(d.supported) == 0 {
		return f
	}
	return d.supported[0]
}

func (d fakeDevice) SupportedSampleRates() []int {
	var rates []int
	for _, s := range d.supported {
		rates = append(rates, s.SampleRate)
	}
	return rates
}

func TestNegotiate(t *testing.T) {
	mono48 := NetworkFormat(1).WithSampleRate(48000)
	stereo48 := mono48.WithChannels(2)
	stereo44 := stereo48.WithSampleRate(44100)
	stereo22 := stereo48.WithSampleRate(22050)

	tests := []struct {
		name     string
		desired  Format
		device   fakeDevice
		expected Format
		ok       bool
	}{
		{"exact match", mono48, fakeDevice{[]Format{mono48}}, mono48, true},
		{"mono upgraded to stereo", mono48, fakeDevice{[]Format{stereo48}}, stereo48, true},
		{"rate fallback to 44100", stereo48, fakeDevice{[]Format{stereo44}}, stereo44, true},
		{"22050 preferred over 44100", NetworkFormat(2), fakeDevice{[]Format{stereo44, stereo22}}, stereo22, true},
		{"48000 preferred first", NetworkFormat(2), fakeDevice{[]Format{stereo44, stereo48}}, stereo48, true},
		{"no adjustment possible", mono48, fakeDevice{}, mono48, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, ok := Negotiate(tt.desired, tt.device)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, chosen)
		})
	}
}
