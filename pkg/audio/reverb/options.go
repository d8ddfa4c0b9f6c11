// ABOUTME: Reverb parameter set shared by script and zone provenances
// ABOUTME: Levels are in decibels, times in seconds, sizes in meters
package reverb

// Options are the parameters of a reverb engine
type Options struct {
	MaxRoomSize    float32 `yaml:"max_room_size"`
	RoomSize       float32 `yaml:"room_size"`
	ReverbTime     float32 `yaml:"reverb_time"`
	Damping        float32 `yaml:"damping"`
	Spread         float32 `yaml:"spread"`
	InputBandwidth float32 `yaml:"input_bandwidth"`
	EarlyLevel     float32 `yaml:"early_level"`
	TailLevel      float32 `yaml:"tail_level"`
	DryLevel       float32 `yaml:"dry_level"`
	WetLevel       float32 `yaml:"wet_level"`
}

// DefaultOptions returns a medium hall
func DefaultOptions() Options {
	return Options{
		MaxRoomSize:    50.0,
		RoomSize:       50.0,
		ReverbTime:     4.0,
		Damping:        0.5,
		Spread:         15.0,
		InputBandwidth: 0.75,
		EarlyLevel:     -22.0,
		TailLevel:      -28.0,
		DryLevel:       0.0,
		WetLevel:       0.0,
	}
}

// Provenance names which configuration source governs the reverb
type Provenance int

const (
	// ProvenanceScript is user or script supplied configuration
	ProvenanceScript Provenance = iota
	// ProvenanceZone is configuration signaled by the server environment
	ProvenanceZone
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceScript:
		return "script"
	case ProvenanceZone:
		return "zone"
	default:
		return "unknown"
	}
}
