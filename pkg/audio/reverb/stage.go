// ABOUTME: Reverb stage owning the local-loopback and network-received engines
// ABOUTME: Tracks script versus zone provenance and mixes dry/wet output
package reverb

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/effects"
	"github.com/sirupsen/logrus"
)

// Target selects which engine a render pass uses
type Target int

const (
	// TargetLocal is the engine for local echo/loopback audio
	TargetLocal Target = iota
	// TargetNetwork is the engine for audio received from the mixer
	TargetNetwork
)

// Stage holds one engine per target. Parameter changes retune the existing
// engines; a provenance switch or sample rate change rebuilds both.
type Stage struct {
	mu         sync.Mutex
	factory    Factory
	sampleRate int
	script     Options
	zone       Options
	active     Provenance
	local      Kernel
	network    Kernel
	rebuilds   int
}

// NewStage creates a stage with default script options
func NewStage(sampleRate int, factory Factory) *Stage {
	if factory == nil {
		factory = NewSimpleKernel
	}
	s := &Stage{
		factory:    factory,
		sampleRate: sampleRate,
		script:     DefaultOptions(),
		zone:       DefaultOptions(),
		active:     ProvenanceScript,
	}
	s.rebuildLocked()
	return s
}

func (s *Stage) current() Options {
	if s.active == ProvenanceZone {
		return s.zone
	}
	return s.script
}

func (s *Stage) rebuildLocked() {
	opts := s.current()
	s.local = s.factory(s.sampleRate, opts)
	s.network = s.factory(s.sampleRate, opts)
	s.rebuilds++

	logrus.WithFields(logrus.Fields{
		"function":    "Stage.rebuild",
		"provenance":  s.active.String(),
		"sample_rate": s.sampleRate,
		"reverb_time": opts.ReverbTime,
		"wet_level":   opts.WetLevel,
	}).Debug("Rebuilt reverb engines")
}

func (s *Stage) retuneLocked() {
	opts := s.current()
	s.local.SetOptions(opts)
	s.network.SetOptions(opts)
}

// SetSampleRate rebuilds both engines for a new output rate
func (s *Stage) SetSampleRate(rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate == s.sampleRate {
		return
	}
	s.sampleRate = rate
	s.rebuildLocked()
}

// SetScriptOptions stores script options; engines are retuned only while the
// script provenance is active.
func (s *Stage) SetScriptOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = opts
	if s.active == ProvenanceScript {
		s.retuneLocked()
	}
}

// ScriptOptions returns the stored script options
func (s *Stage) ScriptOptions() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script
}

// UpdateZone applies the server environment state. While hasReverb is set the
// zone provenance is authoritative with the given reverb time and wet level;
// otherwise the script provenance is. It reports whether anything changed.
func (s *Stage) UpdateZone(hasReverb bool, reverbTime, wetLevel float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !hasReverb {
		if s.active == ProvenanceScript {
			return false
		}
		s.active = ProvenanceScript
		s.rebuildLocked()
		return true
	}

	paramsChanged := false
	if s.zone.ReverbTime != reverbTime {
		s.zone.ReverbTime = reverbTime
		paramsChanged = true
	}
	if s.zone.WetLevel != wetLevel {
		s.zone.WetLevel = wetLevel
		paramsChanged = true
	}

	if s.active != ProvenanceZone {
		s.active = ProvenanceZone
		s.rebuildLocked()
		return true
	}
	if paramsChanged {
		s.retuneLocked()
	}
	return paramsChanged
}

// Active returns the governing provenance
func (s *Stage) Active() Provenance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Options returns the options of the governing provenance
func (s *Stage) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

// Rebuilds counts engine rebuilds, including the initial build
func (s *Stage) Rebuilds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilds
}

// Apply mixes reverb into interleaved samples in place. The first channel of
// each frame drives the engine; channels above two are left untouched. When
// noEcho is set the dry signal is removed, leaving only the wet output.
func (s *Stage) Apply(target Target, samples []int16, channels int, noEcho bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kernel := s.network
	if target == TargetLocal {
		kernel = s.local
	}

	wet := effects.DbToCoef(s.current().WetLevel)
	dry := float32(0)
	if !noEcho {
		dry = 1 - wet
	}

	for i := 0; i+channels <= len(samples); i += channels {
		l, r := kernel.Process(float32(samples[i]))
		samples[i] = audio.ClampSample(int(float32(samples[i])*dry + l*wet))
		if channels > 1 {
			samples[i+1] = audio.ClampSample(int(float32(samples[i+1])*dry + r*wet))
		}
	}
}
