package soundio

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/b0bbywan/go-hfpd/logger"
)

// counters tracks samples exchanged with an endpoint.
type counters struct {
	in, out atomic.Uint64
}

func (c *counters) Counters() (uint64, uint64) { return c.in.Load(), c.out.Load() }

func silence(p []int16) {
	for i := range p {
		p[i] = 0
	}
}

// fileEndpoint plays a decoded WAV or MP3 file, or records the capture
// stream to a WAV file.
type fileEndpoint struct {
	counters
	path  string
	write bool

	samples []int16
	pos     int
	wav     *wavWriter
}

func newFileEndpoint(path string, write bool) *fileEndpoint {
	return &fileEndpoint{path: path, write: write}
}

func (e *fileEndpoint) Kind() Kind      { return KindFile }
func (e *fileEndpoint) Name() string    { return e.path }
func (e *fileEndpoint) BufferSize() int { return 0 }
func (e *fileEndpoint) Clocked() bool   { return false }

func (e *fileEndpoint) Open(int) error {
	if e.write {
		w, err := createWav(e.path)
		if err != nil {
			return fmt.Errorf("open %s: %w", e.path, err)
		}
		e.wav = w
		return nil
	}
	samples, err := decodeFile(e.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.path, err)
	}
	e.samples = samples
	e.pos = 0
	return nil
}

func (e *fileEndpoint) Close() {
	if e.wav != nil {
		if err := e.wav.close(); err != nil {
			logger.Warn("[soundio] failed to close %s: %v", e.path, err)
		}
		e.wav = nil
	}
	e.samples = nil
}

func (e *fileEndpoint) Read(p []int16) (int, error) {
	if e.write {
		silence(p)
		return len(p), nil
	}
	if e.pos >= len(e.samples) {
		return 0, io.EOF
	}
	n := copy(p, e.samples[e.pos:])
	silence(p[n:])
	e.pos += n
	e.out.Add(uint64(len(p)))
	return len(p), nil
}

func (e *fileEndpoint) Write(p []int16) error {
	if !e.write {
		return nil
	}
	if e.wav == nil {
		return ErrClosed
	}
	e.in.Add(uint64(len(p)))
	return e.wav.write(p)
}

// loopback feeds captured samples back to playback.
type loopback struct {
	counters
	ring atomic.Pointer[Ring]
}

func newLoopback() *loopback { return &loopback{} }

func (e *loopback) Kind() Kind      { return KindLoopback }
func (e *loopback) Name() string    { return "loopback" }
func (e *loopback) BufferSize() int { return 0 }
func (e *loopback) Clocked() bool   { return false }

func (e *loopback) Open(packet int) error {
	e.ring.Store(NewRing(4 * packet))
	return nil
}

func (e *loopback) Close() { e.ring.Store(nil) }

func (e *loopback) Write(p []int16) error {
	ring := e.ring.Load()
	if ring == nil {
		return ErrClosed
	}
	e.in.Add(uint64(len(p)))
	ring.Write(p)
	return nil
}

func (e *loopback) Read(p []int16) (int, error) {
	ring := e.ring.Load()
	if ring == nil {
		return 0, ErrClosed
	}
	n := ring.Read(p)
	silence(p[n:])
	e.out.Add(uint64(len(p)))
	return len(p), nil
}

// Membuf is the memory buffer endpoint. It survives across streams: data
// captured by one stream is played back by the next stream that enables
// playback.
type Membuf struct {
	counters
	size     int
	capture  bool
	playback bool

	captured []int16
	played   []int16
	pos      int

	captureDone  bool
	playbackDone bool
}

// NewMembuf creates a memory buffer holding size samples per direction.
func NewMembuf(size int) *Membuf {
	return &Membuf{size: size}
}

func (m *Membuf) Size() int { return m.size }

// Captured returns a copy of the capture region.
func (m *Membuf) Captured() []int16 { return append([]int16(nil), m.captured...) }

// Playback returns a copy of the playback region.
func (m *Membuf) Playback() []int16 { return append([]int16(nil), m.played...) }

// Load replaces the playback region and drops any pending capture so the
// next playback stream plays p.
func (m *Membuf) Load(p []int16) {
	m.played = append([]int16(nil), p[:min(len(p), m.size)]...)
	m.captured = nil
}

// Arm selects the enabled directions for the next stream.
func (m *Membuf) Arm(capture, playback bool) {
	m.capture, m.playback = capture, playback
}

func (m *Membuf) Kind() Kind      { return KindMembuf }
func (m *Membuf) Name() string    { return "membuf" }
func (m *Membuf) BufferSize() int { return 0 }
func (m *Membuf) Clocked() bool   { return false }

func (m *Membuf) Open(int) error {
	if !m.capture && !m.playback {
		return fmt.Errorf("memory buffer needs a direction")
	}
	if m.playback && len(m.captured) > 0 {
		m.shift()
	}
	if m.capture {
		m.captured = make([]int16, 0, m.size)
	}
	m.pos = 0
	m.captureDone = !m.capture
	m.playbackDone = !m.playback
	return nil
}

func (m *Membuf) Close() {}

// shift moves the captured samples into the playback region.
func (m *Membuf) shift() {
	m.played = m.captured
	m.captured = nil
}

func (m *Membuf) done() bool { return m.captureDone && m.playbackDone }

func (m *Membuf) Write(p []int16) error {
	if m.captureDone {
		if m.done() {
			return io.EOF
		}
		return nil
	}
	n := min(len(p), m.size-len(m.captured))
	m.captured = append(m.captured, p[:n]...)
	m.in.Add(uint64(n))
	if len(m.captured) == m.size {
		m.captureDone = true
		if !m.playback || m.playbackDone {
			m.shift()
		}
	}
	if m.done() {
		return io.EOF
	}
	return nil
}

func (m *Membuf) Read(p []int16) (int, error) {
	if m.playbackDone {
		silence(p)
		if m.done() {
			return 0, io.EOF
		}
		return len(p), nil
	}
	n := copy(p, m.played[m.pos:])
	silence(p[n:])
	m.pos += n
	m.out.Add(uint64(n))
	if m.pos >= len(m.played) {
		m.playbackDone = true
	}
	return len(p), nil
}
