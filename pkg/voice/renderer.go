// ABOUTME: Pull-side reader handed to the output device
// ABOUTME: Serves received audio best-effort and fills gaps with silence
package voice

import (
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/jitter"
)

// Renderer is the io.Reader an output sink pulls from. Reads never block
// and never come up short: missing audio is replaced by silence and counted
// as an unfulfilled read.
type Renderer struct {
	stream *jitter.Stream

	mu      sync.Mutex
	samples []int16

	unfulfilled atomic.Int64
	total       atomic.Int64
}

func newRenderer(stream *jitter.Stream) *Renderer {
	return &Renderer{stream: stream}
}

// Read fills p with up to len(p)/2 buffered samples, or with silence when none are buffered
func (r *Renderer) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	requested := len(p) / audio.SampleBytes
	if cap(r.samples) < requested {
		r.samples = make([]int16, requested)
	}
	buf := r.samples[:requested]

	if popped := r.stream.PopSamples(buf, true); popped > 0 {
		return audio.SamplesToBytes(p, buf[:popped]), nil
	}

	clear(p)
	r.unfulfilled.Add(1)
	r.total.Add(1)
	return len(p), nil
}

// RecentUnfulfilledReads returns and clears the count since the last call
func (r *Renderer) RecentUnfulfilledReads() int {
	return int(r.unfulfilled.Swap(0))
}

// UnfulfilledReads returns the count since creation
func (r *Renderer) UnfulfilledReads() int {
	return int(r.total.Load())
}
