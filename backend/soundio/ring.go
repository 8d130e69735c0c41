package soundio

import "sync"

// Ring is a bounded FIFO of samples. Writes beyond capacity drop the oldest
// samples and report how many were lost. It is safe for one producer and one
// consumer on different goroutines.
type Ring struct {
	mu   sync.Mutex
	buf  []int16
	head int
	size int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Write appends p and returns the number of old samples dropped to make room.
func (r *Ring) Write(p []int16) (dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) >= len(r.buf) {
		dropped = r.size + len(p) - len(r.buf)
		copy(r.buf, p[len(p)-len(r.buf):])
		r.head = 0
		r.size = len(r.buf)
		return dropped
	}
	if over := r.size + len(p) - len(r.buf); over > 0 {
		r.discard(over)
		dropped = over
	}
	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.size += len(p)
	return dropped
}

// Read moves up to len(p) samples into p.
func (r *Ring) Read(p []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(p), r.size)
	first := min(n, len(r.buf)-r.head)
	copy(p, r.buf[r.head:r.head+first])
	copy(p[first:n], r.buf)
	r.discard(n)
	return n
}

// Discard drops up to n of the oldest samples.
func (r *Ring) Discard(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n = min(n, r.size)
	r.discard(n)
	return n
}

func (r *Ring) Reset() {
	r.mu.Lock()
	r.head, r.size = 0, 0
	r.mu.Unlock()
}

func (r *Ring) discard(n int) {
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	if r.size == 0 {
		r.head = 0
	}
}
