package audio

import "sync"

// Ring is a fixed-capacity sample buffer. When a write exceeds the free
// space the oldest samples are overwritten and counted as dropped, so a
// stalled reader degrades audio instead of blocking the capture callback.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int // next read index
	size    int // samples currently stored
	dropped uint64
}

// NewRing creates a ring holding up to capacity samples
func NewRing(capacity int) *Ring {
	return &Ring{
		buf: make([]float32, capacity),
	}
}

// Write appends samples, overwriting the oldest data when full
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(samples)
	if n >= len(r.buf) {
		// Input alone fills the ring; keep only the newest samples.
		r.dropped += uint64(r.size + n - len(r.buf))
		copy(r.buf, samples[n-len(r.buf):])
		r.head = 0
		r.size = len(r.buf)
		return
	}

	overflow := r.size + n - len(r.buf)
	if overflow > 0 {
		r.head = (r.head + overflow) % len(r.buf)
		r.size -= overflow
		r.dropped += uint64(overflow)
	}

	tail := (r.head + r.size) % len(r.buf)
	first := copy(r.buf[tail:], samples)
	copy(r.buf, samples[first:])
	r.size += n
}

// Read removes up to len(dst) samples into dst and returns the count
func (r *Ring) Read(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(dst)
	if n > r.size {
		n = r.size
	}

	first := copy(dst[:n], r.buf[r.head:min(r.head+n, len(r.buf))])
	copy(dst[first:n], r.buf[:n-first])

	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return n
}

// Len returns the number of buffered samples
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Dropped returns the total samples overwritten before being read
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
