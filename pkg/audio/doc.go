// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Frame, network constants and format negotiation
// Package audio provides the fundamental PCM types shared by the voice pipeline.
//
// This package defines:
//   - Format: sample rate, channel count and sample encoding of a PCM stream
//   - Frame: interleaved signed 16-bit samples
//   - the network wire format constants (24kHz, 256 samples per channel per frame)
//   - Negotiate: device format negotiation
//
// Example:
//
//	desired := audio.NetworkFormat(1)
//	chosen, ok := audio.Negotiate(desired, device)
//	if !ok {
//	    // device cannot be opened with anything close to desired
//	}
package audio
