// ABOUTME: Thread-safe ring buffer of 16-bit samples
// ABOUTME: Connects capture callbacks to the packetizer and loopback audio to its sink
package device

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Ring is a fixed-capacity circular buffer of samples. Writes beyond capacity
// overwrite the oldest samples.
type Ring struct {
	buffer   []int16
	readPos  int
	writePos int
	count    int
	mu       sync.Mutex
}

// NewRing creates a ring with capacity samples
func NewRing(capacity int) *Ring {
	return &Ring{buffer: make([]int16, capacity)}
}

// Resize discards contents and sets a new capacity
func (r *Ring) Resize(capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = make([]int16, capacity)
	r.readPos, r.writePos, r.count = 0, 0, 0
}

// Capacity returns the size in samples
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Write appends samples, dropping the oldest on overflow, and returns len(samples)
func (r *Ring) Write(samples []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.buffer)
	if size == 0 {
		return 0
	}
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}
	for _, s := range samples {
		r.buffer[r.writePos] = s
		r.writePos = (r.writePos + 1) % size
	}
	r.count += len(samples)
	if r.count > size {
		r.readPos = (r.readPos + r.count - size) % size
		r.count = size
	}
	return len(samples)
}

// WriteBytes appends little-endian PCM
func (r *Ring) WriteBytes(data []byte) int {
	samples := make([]int16, len(data)/audio.SampleBytes)
	audio.BytesToSamples(samples, data)
	return r.Write(samples)
}

// Read pops up to len(samples) samples and returns how many were read
func (r *Ring) Read(samples []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	read := 0
	for read < len(samples) && r.count > 0 {
		samples[read] = r.buffer[r.readPos]
		r.readPos = (r.readPos + 1) % len(r.buffer)
		r.count--
		read++
	}
	return read
}

// Shift advances the read position by up to n samples without copying
func (r *Ring) Shift(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	if n > 0 {
		r.readPos = (r.readPos + n) % len(r.buffer)
		r.count -= n
	}
	return n
}

// Available returns the number of samples ready to read
func (r *Ring) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Free returns the number of samples that fit without overwriting
func (r *Ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer) - r.count
}

// Reset drops all samples
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readPos, r.writePos, r.count = 0, 0, 0
}

// RingReader exposes a Ring as a PCM byte stream for render backends.
// Reads never starve: missing samples are filled with silence.
type RingReader struct {
	ring    *Ring
	scratch []int16
}

// NewRingReader wraps ring
func NewRingReader(ring *Ring) *RingReader {
	return &RingReader{ring: ring}
}

// Read fills p with queued audio followed by silence
func (rr *RingReader) Read(p []byte) (int, error) {
	n := len(p) / audio.SampleBytes
	if cap(rr.scratch) < n {
		rr.scratch = make([]int16, n)
	}
	samples := rr.scratch[:n]
	got := rr.ring.Read(samples)
	for i := got; i < n; i++ {
		samples[i] = 0
	}
	return audio.SamplesToBytes(p, samples), nil
}
