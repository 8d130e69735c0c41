package hfp

import (
	"sync/atomic"

	"github.com/b0bbywan/go-hfpd/backend/soundio"
)

// gatewayEndpoint streams the audio link of a gateway through the sound
// engine. The link is captured at Open so the pump never touches gateway
// state.
type gatewayEndpoint struct {
	ag   *AudioGateway
	link atomic.Pointer[AudioLink]

	// in counts samples received from the link, out samples the link took
	in, out atomic.Uint64
}

var _ soundio.GatewayEndpoint = (*gatewayEndpoint)(nil)

func (e *gatewayEndpoint) Kind() soundio.Kind { return soundio.KindGateway }
func (e *gatewayEndpoint) Name() string       { return e.ag.path }
func (e *gatewayEndpoint) Clocked() bool      { return true }

func (e *gatewayEndpoint) AudioConnected() bool {
	return e.ag.audio == AudioConnected && e.ag.link != nil
}

func (e *gatewayEndpoint) OpenAudio() error {
	return e.ag.openAudio()
}

func (e *gatewayEndpoint) Open(packet int) error {
	if !e.AudioConnected() {
		return ErrNotConnected
	}
	link := e.ag.link
	e.link.Store(&link)
	e.in.Store(0)
	e.out.Store(0)
	return nil
}

func (e *gatewayEndpoint) Close() {
	e.link.Store(nil)
}

func (e *gatewayEndpoint) current() AudioLink {
	if l := e.link.Load(); l != nil {
		return *l
	}
	return nil
}

func (e *gatewayEndpoint) BufferSize() int {
	link := e.current()
	if link == nil {
		return 0
	}
	return link.BufferSize()
}

func (e *gatewayEndpoint) Read(p []int16) (int, error) {
	link := e.current()
	if link == nil {
		return 0, soundio.ErrClosed
	}
	n, err := link.Read(p)
	e.in.Add(uint64(n))
	return n, err
}

func (e *gatewayEndpoint) Write(p []int16) error {
	link := e.current()
	if link == nil {
		return soundio.ErrClosed
	}
	n, err := link.Write(p)
	e.out.Add(uint64(n))
	return err
}

func (e *gatewayEndpoint) Counters() (in, out uint64) {
	return e.in.Load(), e.out.Load()
}
