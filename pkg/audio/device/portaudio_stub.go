//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package device

import "fmt"

// NewPortAudioProvider reports that PortAudio support is not compiled in
func NewPortAudioProvider() (Provider, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio): %w", ErrUnsupported)
}
