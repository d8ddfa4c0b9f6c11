// ABOUTME: Received audio stream with an adaptive jitter buffer
// ABOUTME: Sequences network frames, converts them for the device and serves best-effort pops
package jitter

import (
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/sirupsen/logrus"
)

// Processor converts one network-format frame into device-format samples
type Processor func(network []int16) []int16

type arrival struct {
	at  time.Time
	gap time.Duration
}

// Stream buffers mixed audio received from the network. Frames are run
// through the processor as they arrive, so the buffer holds device-format
// samples and pops never resample. Safe for concurrent use.
type Stream struct {
	mu       sync.Mutex
	settings Settings
	now      func() time.Time

	capacityFrames      int
	networkFrameSamples int
	frameSamples        int // device samples per network frame
	processor           Processor
	ring                *device.Ring

	desiredFrames int
	refilling     bool
	hasSeq        bool
	lastSeq       uint16
	lastFrame     []int16
	lastPop       []int16
	fillFade      int

	lastArrival   time.Time
	arrivals      []arrival
	starveTimes   []time.Time
	reductionFrom time.Time

	stats Stats
}

// NewStream creates a stream holding up to capacityFrames frames of
// networkFrameSamples samples each. now may be nil for wall-clock time.
func NewStream(capacityFrames, networkFrameSamples int, settings Settings, now func() time.Time) *Stream {
	if now == nil {
		now = time.Now
	}
	s := &Stream{
		settings:            settings,
		now:                 now,
		capacityFrames:      capacityFrames,
		networkFrameSamples: networkFrameSamples,
		frameSamples:        networkFrameSamples,
		ring:                device.NewRing(capacityFrames * networkFrameSamples),
		refilling:           true,
	}
	s.desiredFrames = s.initialDesired()
	s.reductionFrom = now()
	return s
}

func (s *Stream) initialDesired() int {
	if s.settings.Dynamic {
		return 1
	}
	return s.clampDesired(s.settings.StaticDesiredFrames)
}

func (s *Stream) clampDesired(frames int) int {
	if frames < 1 {
		return 1
	}
	if frames > s.capacityFrames {
		return s.capacityFrames
	}
	return frames
}

// SetProcessor installs the network-to-device conversion and the number of
// device samples one network frame becomes. Buffered audio is discarded.
func (s *Stream) SetProcessor(p Processor, frameSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processor = p
	if frameSamples <= 0 {
		frameSamples = s.networkFrameSamples
	}
	s.frameSamples = frameSamples
	s.ring.Resize(s.capacityFrames * frameSamples)
	s.lastFrame = nil
	s.refilling = true
}

// Reconfigure applies new settings
func (s *Stream) Reconfigure(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.desiredFrames = s.initialDesired()
	s.starveTimes = nil
	s.reductionFrom = s.now()

	logrus.WithFields(logrus.Fields{
		"function":       "Stream.Reconfigure",
		"dynamic":        settings.Dynamic,
		"desired_frames": s.desiredFrames,
	}).Debug("Jitter buffer reconfigured")
}

// Settings returns the current settings
func (s *Stream) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// WriteAudio admits one network frame with sequence number seq
func (s *Stream) WriteAudio(seq uint16, samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admit(seq) {
		return
	}
	s.writeFrame(samples)
}

// WriteSilence admits a silent frame of n network samples. Silence is
// dropped when the buffer already holds more than desired.
func (s *Stream) WriteSilence(seq uint16, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admit(seq) {
		return
	}
	if s.settings.Dynamic && s.framesAvailable() > s.desiredFrames {
		s.stats.SilentFramesDropped++
		return
	}
	s.writeFrame(make([]int16, n))
}

// admit tracks sequence numbers and arrival gaps, filling lost frames
func (s *Stream) admit(seq uint16) bool {
	now := s.now()
	s.stats.PacketsReceived++

	if s.hasSeq {
		dist := int16(seq - (s.lastSeq + 1))
		if dist < 0 {
			s.stats.LatePackets++
			return false
		}
		if dist > 0 {
			s.stats.LostPackets += int(dist)
			fill := int(dist)
			if fill > s.desiredFrames {
				fill = s.desiredFrames
			}
			for i := 0; i < fill; i++ {
				s.writeFill()
			}
		}
	}
	s.hasSeq = true
	s.lastSeq = seq

	if !s.lastArrival.IsZero() {
		s.arrivals = append(s.arrivals, arrival{at: now, gap: now.Sub(s.lastArrival)})
	}
	s.lastArrival = now
	s.pruneArrivals(now)
	s.maybeReduceDesired(now)
	return true
}

func (s *Stream) writeFill() {
	if s.settings.RepetitionWithFade && s.lastFrame != nil {
		s.fillFade++
		factor := 1.0 / float64(s.fillFade+1)
		frame := make([]int16, len(s.lastFrame))
		for i, v := range s.lastFrame {
			frame[i] = int16(float64(v) * factor)
		}
		s.push(frame)
		return
	}
	s.push(make([]int16, s.frameSamples))
}

func (s *Stream) writeFrame(samples []int16) {
	out := samples
	if s.processor != nil {
		out = s.processor(samples)
	}
	s.fillFade = 0
	s.lastFrame = append(s.lastFrame[:0], out...)
	s.push(out)
}

func (s *Stream) push(deviceSamples []int16) {
	s.ring.Write(deviceSamples)

	limit := s.desiredFrames + s.settings.MaxFramesOverDesired
	if over := s.framesAvailable() - limit; over > 0 && s.settings.MaxFramesOverDesired > 0 {
		s.ring.Shift(over * s.frameSamples)
		s.stats.FramesDropped += over
	}
}

func (s *Stream) framesAvailable() int {
	if s.frameSamples == 0 {
		return 0
	}
	return s.ring.Available() / s.frameSamples
}

// PopSamples copies up to len(dst) buffered samples into dst. With
// allowPartial, fewer samples than requested are returned rather than none.
// After a starve nothing is returned until desired frames are buffered again.
func (s *Stream) PopSamples(dst []int16, allowPartial bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refilling {
		if s.framesAvailable() < s.desiredFrames {
			s.lastPop = s.lastPop[:0]
			return 0
		}
		s.refilling = false
	}

	available := s.ring.Available()
	if available == 0 || (!allowPartial && available < len(dst)) {
		s.starve()
		s.lastPop = s.lastPop[:0]
		return 0
	}

	n := s.ring.Read(dst)
	s.stats.ConsecutiveStarves = 0
	s.lastPop = append(s.lastPop[:0], dst[:n]...)
	return n
}

func (s *Stream) starve() {
	now := s.now()
	s.refilling = true
	s.stats.Starves++
	s.stats.ConsecutiveStarves++

	if !s.settings.Dynamic {
		return
	}

	s.starveTimes = append(s.starveTimes, now)
	window := time.Duration(s.settings.WindowSecondsForDesiredCalcOnTooManyStarves) * time.Second
	kept := s.starveTimes[:0]
	for _, t := range s.starveTimes {
		if now.Sub(t) <= window {
			kept = append(kept, t)
		}
	}
	s.starveTimes = kept

	if len(s.starveTimes) >= s.settings.WindowStarveThreshold {
		desired := s.clampDesired(s.framesForJitter(s.arrivals))
		if desired > s.desiredFrames {
			logrus.WithFields(logrus.Fields{
				"function": "Stream.starve",
				"from":     s.desiredFrames,
				"to":       desired,
			}).Debug("Raising desired jitter frames")
			s.desiredFrames = desired
		}
		s.starveTimes = s.starveTimes[:0]
	}
	s.reductionFrom = now
}

// maybeReduceDesired shrinks desired once a reduction window passes without starves
func (s *Stream) maybeReduceDesired(now time.Time) {
	if !s.settings.Dynamic {
		return
	}
	window := time.Duration(s.settings.WindowSecondsForDesiredReduction) * time.Second
	if now.Sub(s.reductionFrom) < window {
		return
	}
	s.reductionFrom = now

	var recent []arrival
	for _, a := range s.arrivals {
		if now.Sub(a.at) < window {
			recent = append(recent, a)
		}
	}
	desired := s.clampDesired(s.framesForJitter(recent))
	if desired < s.desiredFrames {
		s.desiredFrames = desired
	}
}

func (s *Stream) frameDuration() time.Duration {
	return time.Second * audio.NetworkFrameSamplesPerChannel / audio.NetworkSampleRate
}

// framesForJitter converts arrival gaps into a frame count
func (s *Stream) framesForJitter(arrivals []arrival) int {
	if len(arrivals) == 0 {
		return 1
	}
	frame := s.frameDuration().Seconds()

	if s.settings.UseStDevForJitter {
		var sum, sumSq float64
		for _, a := range arrivals {
			g := a.gap.Seconds()
			sum += g
			sumSq += g * g
		}
		n := float64(len(arrivals))
		mean := sum / n
		stdev := math.Sqrt(math.Max(sumSq/n-mean*mean, 0))
		return int(math.Ceil(3 * stdev / frame))
	}

	var maxGap time.Duration
	for _, a := range arrivals {
		if a.gap > maxGap {
			maxGap = a.gap
		}
	}
	return int(math.Ceil(maxGap.Seconds() / frame))
}

func (s *Stream) pruneArrivals(now time.Time) {
	longest := s.settings.WindowSecondsForDesiredCalcOnTooManyStarves
	if s.settings.WindowSecondsForDesiredReduction > longest {
		longest = s.settings.WindowSecondsForDesiredReduction
	}
	window := time.Duration(longest) * time.Second
	i := 0
	for i < len(s.arrivals) && now.Sub(s.arrivals[i].at) > window {
		i++
	}
	s.arrivals = s.arrivals[i:]
}

// LastPop returns the samples delivered by the most recent pop
func (s *Stream) LastPop() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.lastPop...)
}

// SamplesAvailable returns the number of buffered device samples
func (s *Stream) SamplesAvailable() int {
	return s.ring.Available()
}

// DesiredFrames returns the current target depth
func (s *Stream) DesiredFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredFrames
}

// Stats returns a snapshot of the counters
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.DesiredFrames = s.desiredFrames
	st.FramesAvailable = s.framesAvailable()
	return st
}

// Reset drops buffered audio, sequence tracking and statistics
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Reset()
	s.hasSeq = false
	s.refilling = true
	s.lastFrame = nil
	s.lastPop = s.lastPop[:0]
	s.fillFade = 0
	s.lastArrival = time.Time{}
	s.arrivals = nil
	s.starveTimes = nil
	s.stats = Stats{}
	s.desiredFrames = s.initialDesired()
	s.reductionFrom = s.now()
}
