// ABOUTME: Jitter buffer tuning parameters
// ABOUTME: Defaults match the persisted configuration keys of the voice client
package jitter

// Settings control how many frames the stream tries to keep buffered
type Settings struct {
	// Dynamic adapts the desired frame count to measured arrival jitter
	Dynamic bool `yaml:"dynamic_jitter_buffers"`
	// MaxFramesOverDesired is how far above desired the buffer may grow before frames are dropped
	MaxFramesOverDesired int `yaml:"max_frames_over_desired"`
	// StaticDesiredFrames is the desired frame count when Dynamic is off
	StaticDesiredFrames int `yaml:"static_desired_jitter_buffer_frames"`
	// UseStDevForJitter derives desired frames from the gap standard deviation instead of the max gap
	UseStDevForJitter bool `yaml:"use_stdev_for_jitter_calc"`
	// WindowStarveThreshold is the number of starves within the window that triggers a desired recalculation
	WindowStarveThreshold int `yaml:"window_starve_threshold"`
	// WindowSecondsForDesiredCalcOnTooManyStarves is the gap history used after too many starves
	WindowSecondsForDesiredCalcOnTooManyStarves int `yaml:"window_seconds_for_desired_calc_on_too_many_starves"`
	// WindowSecondsForDesiredReduction is the period after which desired may shrink
	WindowSecondsForDesiredReduction int `yaml:"window_seconds_for_desired_reduction"`
	// RepetitionWithFade fills lost frames with a fading copy of the last frame instead of silence
	RepetitionWithFade bool `yaml:"repetition_with_fade"`
}

const (
	DefaultMaxFramesOverDesired  = 10
	DefaultStaticDesiredFrames   = 1
	DefaultWindowStarveThreshold = 3

	DefaultWindowSecondsForDesiredCalcOnTooManyStarves = 50
	DefaultWindowSecondsForDesiredReduction            = 10

	// DefaultCapacityFrames is the received stream capacity in network frames
	DefaultCapacityFrames = 100
)

// DefaultSettings returns the dynamic jitter buffer configuration
func DefaultSettings() Settings {
	return Settings{
		Dynamic:               true,
		MaxFramesOverDesired:  DefaultMaxFramesOverDesired,
		StaticDesiredFrames:   DefaultStaticDesiredFrames,
		UseStDevForJitter:     false,
		WindowStarveThreshold: DefaultWindowStarveThreshold,

		WindowSecondsForDesiredCalcOnTooManyStarves: DefaultWindowSecondsForDesiredCalcOnTooManyStarves,
		WindowSecondsForDesiredReduction:            DefaultWindowSecondsForDesiredReduction,
		RepetitionWithFade:                          true,
	}
}

// Stats is a snapshot of stream counters
type Stats struct {
	DesiredFrames       int
	FramesAvailable     int
	Starves             int
	ConsecutiveStarves  int
	FramesDropped       int
	SilentFramesDropped int
	LostPackets         int
	LatePackets         int
	PacketsReceived     int
}
