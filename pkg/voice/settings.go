// ABOUTME: Persisted voice client settings
// ABOUTME: Jitter buffer and output buffer/starve detection parameters
package voice

import (
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
)

const (
	// MinOutputBufferFrames and MaxOutputBufferFrames bound the output sink size
	MinOutputBufferFrames = 1
	MaxOutputBufferFrames = 20

	// DefaultOutputBufferFrames matches the default jitter headroom
	DefaultOutputBufferFrames = jitter.DefaultMaxFramesOverDesired

	DefaultStarveDetectionPeriod    = 10 * time.Second
	DefaultStarveDetectionThreshold = 3
)

// OutputSettings control the render sink size and its adaptive growth
type OutputSettings struct {
	BufferSizeFrames         int
	StarveDetectionEnabled   bool
	StarveDetectionPeriod    time.Duration
	StarveDetectionThreshold int
}

// Settings are the values saved between sessions
type Settings struct {
	Jitter jitter.Settings
	Output OutputSettings
}

// DefaultSettings returns the settings of a fresh install
func DefaultSettings() Settings {
	return Settings{
		Jitter: jitter.DefaultSettings(),
		Output: OutputSettings{
			BufferSizeFrames:         DefaultOutputBufferFrames,
			StarveDetectionEnabled:   true,
			StarveDetectionPeriod:    DefaultStarveDetectionPeriod,
			StarveDetectionThreshold: DefaultStarveDetectionThreshold,
		},
	}
}

func clampOutputFrames(frames int) int {
	if frames < MinOutputBufferFrames {
		return MinOutputBufferFrames
	}
	if frames > MaxOutputBufferFrames {
		return MaxOutputBufferFrames
	}
	return frames
}

// LoadSettings applies persisted settings. Jitter settings reconfigure the
// received stream; a changed output buffer size recreates the output sink.
func (c *Client) LoadSettings(s Settings) {
	c.stream.Reconfigure(s.Jitter)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputSettings.StarveDetectionEnabled = s.Output.StarveDetectionEnabled
	if s.Output.StarveDetectionPeriod > 0 {
		c.outputSettings.StarveDetectionPeriod = s.Output.StarveDetectionPeriod
	}
	if s.Output.StarveDetectionThreshold > 0 {
		c.outputSettings.StarveDetectionThreshold = s.Output.StarveDetectionThreshold
	}
	if s.Output.BufferSizeFrames > 0 {
		c.setOutputBufferSizeLocked(s.Output.BufferSizeFrames)
	}
}

// SaveSettings returns the current values for persistence. The static
// desired frame count records the depth the stream settled on.
func (c *Client) SaveSettings() Settings {
	js := c.stream.Settings()
	js.StaticDesiredFrames = c.stream.DesiredFrames()

	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.outputSettings
	out.BufferSizeFrames = c.outputBufferFrames
	return Settings{Jitter: js, Output: out}
}
