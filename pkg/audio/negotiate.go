// ABOUTME: Format negotiation against device capabilities
// ABOUTME: Picks a device-compatible format, preferring channel fallback then nearby rates
package audio

import "github.com/sirupsen/logrus"

// FormatQuerier is the part of a device that answers format questions
type FormatQuerier interface {
	IsFormatSupported(f Format) bool
	NearestFormat(f Format) Format
	SupportedSampleRates() []int
}

const (
	fortyFour     = 44100
	halfFortyFour = fortyFour / 2
)

// Negotiate picks the format to open a device with.
//
// The desired format is used as-is when supported. A mono request is upgraded to
// stereo when only that differs. Otherwise the sample rate is moved to the first
// supported rate of 2x network rate, 22050 and 44100, and the device's nearest
// format to that is taken. ok is false only when no adjustment was possible.
func Negotiate(desired Format, dev FormatQuerier) (Format, bool) {
	if dev.IsFormatSupported(desired) {
		return desired, true
	}

	logrus.WithFields(logrus.Fields{
		"function": "Negotiate",
		"desired":  desired.String(),
	}).Debug("Desired format not supported by device")

	if desired.Channels == 1 {
		stereo := desired.WithChannels(2)
		if dev.IsFormatSupported(stereo) {
			return stereo, true
		}
	}

	adjusted := desired
	rates := dev.SupportedSampleRates()
	for _, rate := range []int{NetworkSampleRate * 2, halfFortyFour, fortyFour} {
		if containsRate(rates, rate) {
			adjusted = desired.WithSampleRate(rate)
			break
		}
	}

	nearest := dev.NearestFormat(adjusted)
	if nearest == desired {
		return desired, false
	}
	return nearest, true
}

func containsRate(rates []int, rate int) bool {
	for _, r := range rates {
		if r == rate {
			return true
		}
	}
	return false
}
