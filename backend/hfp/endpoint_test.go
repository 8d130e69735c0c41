package hfp

import (
	"errors"
	"testing"

	"github.com/b0bbywan/go-hfpd/backend/soundio"
)

// pacedLink accepts at most limit samples per write.
type pacedLink struct {
	fakeLink
	limit int
}

func (l *pacedLink) Write(p []int16) (int, error) {
	n := min(len(p), l.limit)
	l.written.Add(int64(n))
	return n, nil
}

func openEndpoint(t *testing.T, link AudioLink) *gatewayEndpoint {
	t.Helper()
	ag := &AudioGateway{path: GatewayPath(testAddr), audio: AudioConnected, link: link}
	e := &gatewayEndpoint{ag: ag}
	if err := e.Open(160); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return e
}

func TestGatewayEndpoint_CountsAcceptedSamples(t *testing.T) {
	e := openEndpoint(t, &pacedLink{limit: 24})

	for i := 0; i < 3; i++ {
		if err := e.Write(make([]int16, 160)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if _, out := e.Counters(); out != 72 {
		t.Errorf("out = %d, want 72 samples taken by the link", out)
	}
}

func TestGatewayEndpoint_UseAfterClose(t *testing.T) {
	e := openEndpoint(t, &fakeLink{})
	e.Close()

	if err := e.Write(make([]int16, 160)); !errors.Is(err, soundio.ErrClosed) {
		t.Errorf("Write() after Close = %v, want %v", err, soundio.ErrClosed)
	}
	if _, err := e.Read(make([]int16, 160)); !errors.Is(err, soundio.ErrClosed) {
		t.Errorf("Read() after Close = %v, want %v", err, soundio.ErrClosed)
	}
	if n := e.BufferSize(); n != 0 {
		t.Errorf("BufferSize() after Close = %d, want 0", n)
	}
}
