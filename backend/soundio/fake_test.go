package soundio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeDriver opens fakeStreams producing a constant capture value.
type fakeDriver struct {
	mu     sync.Mutex
	name   string
	value  int16
	failAt int // capture packet failing with a hard error, 0 for never
	xrunAt int
	// stallAt blocks that capture packet for stall
	stallAt int
	stall   time.Duration
	openErr error
	streams []*fakeStream
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name, value: 7}
}

func (d *fakeDriver) Name() string        { return d.name }
func (d *fakeDriver) Description() string { return "fake " + d.name }

func (d *fakeDriver) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{Name: "default", Input: true, Output: true}}, nil
}

func (d *fakeDriver) Open(opts string, packet int) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeStream{
		buffer:  8 * packet,
		value:   d.value,
		failAt:  d.failAt,
		xrunAt:  d.xrunAt,
		stallAt: d.stallAt,
		stall:   d.stall,
	}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDriver) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type fakeStream struct {
	mu      sync.Mutex
	buffer  int
	value   int16
	failAt  int
	xrunAt  int
	stallAt int
	stall   time.Duration
	reads   int
	written []int16
	closed  bool
}

func (s *fakeStream) BufferSize() int { return s.buffer }

func (s *fakeStream) Read(p []int16) error {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	s.reads++
	reads := s.reads
	for i := range p {
		p[i] = s.value
	}
	s.mu.Unlock()

	switch reads {
	case s.stallAt:
		time.Sleep(s.stall)
	case s.failAt:
		return fmt.Errorf("device unplugged")
	case s.xrunAt:
		return fmt.Errorf("capture: %w", ErrXrun)
	}
	return nil
}

func (s *fakeStream) Write(p []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, p...)
	return nil
}

func (s *fakeStream) Pending() int { return 0 }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) snapshot() ([]int16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.written...), s.closed
}

// closingGateway is a gateway endpoint counting calls made after Close.
type closingGateway struct {
	fakeGateway
	closed atomic.Bool
	late   atomic.Int32
}

func (g *closingGateway) Close() { g.closed.Store(true) }

func (g *closingGateway) Read(p []int16) (int, error) {
	if g.closed.Load() {
		g.late.Add(1)
	}
	return 0, nil
}

func (g *closingGateway) Write(p []int16) error {
	if g.closed.Load() {
		g.late.Add(1)
	}
	return nil
}

// opLog records endpoint lifecycle calls across endpoints.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

// fakeGateway is a clocked gateway endpoint with a controllable audio link.
type fakeGateway struct {
	counters
	name      string
	log       *opLog
	connected bool
	openAudio int
	buffer    int
}

func (g *fakeGateway) Kind() Kind      { return KindGateway }
func (g *fakeGateway) Name() string    { return g.name }
func (g *fakeGateway) BufferSize() int { return g.buffer }
func (g *fakeGateway) Clocked() bool   { return true }

func (g *fakeGateway) Open(int) error {
	if g.log != nil {
		g.log.add(g.name + ".open")
	}
	return nil
}

func (g *fakeGateway) Close() {
	if g.log != nil {
		g.log.add(g.name + ".close")
	}
}

func (g *fakeGateway) Read(p []int16) (int, error) { return 0, nil }

func (g *fakeGateway) Write(p []int16) error {
	g.out.Add(uint64(len(p)))
	return nil
}

func (g *fakeGateway) AudioConnected() bool { return g.connected }

func (g *fakeGateway) OpenAudio() error {
	g.openAudio++
	return nil
}
