// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for turning encoded bytes into 16-bit PCM frames
package decode

import "github.com/Resonate-Protocol/resonate-voice/pkg/audio"

// Decoder decodes audio to interleaved 16-bit PCM samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) (audio.Frame, error)

	// Close releases decoder resources
	Close() error
}
