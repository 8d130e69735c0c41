package hfp

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/events"
)

const testAddr = "01:23:45:67:89:AB"

// fakeRadio records requests; completions are driven by the tests unless
// autoConnect or autoReply is set.
type fakeRadio struct {
	mu sync.Mutex

	handler  RadioHandler
	startErr error
	starts   int
	stops    int

	autoConnect bool
	slc         SLCInfo
	connects    map[string]func(SLCInfo, error)

	autoReply bool
	commands  []Command
	replies   []func(error)

	names     map[string]string
	holdNames bool

	disconnects []string
	audioOpens  []string
	audioCloses []string
	inquiries   int
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{
		autoConnect: true,
		autoReply:   true,
		slc:         SLCInfo{Features: FeatThreeWayCalling, Indicators: map[string]int{"call": 0, "callsetup": 0, "signal": 4}},
		connects:    map[string]func(SLCInfo, error){},
		names:       map[string]string{testAddr: "Test Phone"},
	}
}

func (r *fakeRadio) Start(ctx context.Context, cfg RadioConfig, h RadioHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.startErr != nil {
		return r.startErr
	}
	r.handler = h
	return nil
}

func (r *fakeRadio) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *fakeRadio) StartInquiry() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inquiries++
	return nil
}

func (r *fakeRadio) StopInquiry() error { return nil }

func (r *fakeRadio) Connect(addr string, done func(SLCInfo, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.autoConnect {
		done(r.slc, nil)
		return
	}
	r.connects[addr] = done
}

func (r *fakeRadio) completeConnect(addr string, err error) {
	r.mu.Lock()
	done := r.connects[addr]
	delete(r.connects, addr)
	slc := r.slc
	r.mu.Unlock()
	done(slc, err)
}

func (r *fakeRadio) Disconnect(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, addr)
}

func (r *fakeRadio) SendCommand(addr string, cmd Command, done func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if r.autoReply {
		done(nil)
		return
	}
	r.replies = append(r.replies, done)
}

func (r *fakeRadio) OpenAudio(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioOpens = append(r.audioOpens, addr)
	return nil
}

func (r *fakeRadio) CloseAudio(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioCloses = append(r.audioCloses, addr)
}

func (r *fakeRadio) ReadName(addr string, done func(string, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holdNames {
		return
	}
	if name, ok := r.names[addr]; ok {
		done(name, nil)
		return
	}
	done("", errors.New("page timeout"))
}

func (r *fakeRadio) events() RadioHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

func (r *fakeRadio) sent() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

func (r *fakeRadio) disconnected(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.disconnects, addr)
}

// fakeLink is an audio link that never receives samples.
type fakeLink struct {
	written atomic.Int64
	closed  atomic.Bool
}

func (l *fakeLink) Read(p []int16) (int, error) { return 0, nil }

func (l *fakeLink) Write(p []int16) (int, error) {
	l.written.Add(int64(len(p)))
	return len(p), nil
}

func (l *fakeLink) BufferSize() int { return 800 }

func (l *fakeLink) Close() error {
	l.closed.Store(true)
	return nil
}

// pcmDriver is a sound driver paced at one millisecond per packet.
type pcmDriver struct{}

func (pcmDriver) Name() string        { return "fake" }
func (pcmDriver) Description() string { return "fake driver" }

func (pcmDriver) Devices() ([]soundio.DeviceInfo, error) { return nil, nil }

func (pcmDriver) Open(opts string, packet int) (soundio.Stream, error) {
	return &pcmStream{buffer: 8 * packet}, nil
}

type pcmStream struct{ buffer int }

func (s *pcmStream) BufferSize() int { return s.buffer }
func (s *pcmStream) Read(p []int16) error {
	time.Sleep(time.Millisecond)
	return nil
}
func (s *pcmStream) Write(p []int16) error { return nil }
func (s *pcmStream) Pending() int          { return 0 }
func (s *pcmStream) Close() error          { return nil }

type testEnv struct {
	hf    *HandsFree
	radio *fakeRadio
	sound *soundio.SoundIo
	loop  *core.Loop
	store *config.Store
}

func newTestEnv(t *testing.T, opts config.HandsFreeConfig, cfg Config) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	loop := core.NewLoop(ctx)
	store := config.NewStore(viper.New(), filepath.Join(t.TempDir(), "config.yaml"),
		opts, config.AudioConfig{Driver: "fake"})
	sound := soundio.New(loop, store, pcmDriver{})
	radio := newFakeRadio()
	hf := New(ctx, loop, store, radio, sound, cfg)
	t.Cleanup(sound.Close)
	t.Cleanup(hf.Close)
	return &testEnv{hf: hf, radio: radio, sound: sound, loop: loop, store: store}
}

// started starts the radio and opens a session.
func (e *testEnv) started(t *testing.T) string {
	t.Helper()
	if err := e.hf.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	session, err := e.hf.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session
}

// connected claims testAddr, connects it and waits for the connection.
func (e *testEnv) connected(t *testing.T) (string, *AudioGateway) {
	t.Helper()
	session := e.started(t)
	if _, err := e.hf.AddDevice(context.Background(), session, testAddr, false); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	ag, err := e.hf.Gateway(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Gateway() error = %v", err)
	}
	if err := ag.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, e.loop, events.TypeGatewayState, stateIs(int(StateConnected)))
	return session, ag
}

// withAudio brings the audio link of ag up.
func (e *testEnv) withAudio(t *testing.T, ag *AudioGateway) *fakeLink {
	t.Helper()
	if err := ag.OpenAudio(context.Background()); err != nil {
		t.Fatalf("OpenAudio() error = %v", err)
	}
	link := &fakeLink{}
	e.radio.events().AudioConnected(ag.Address(), link)
	waitEvent(t, e.loop, events.TypeGatewayAudio, stateIs(int(AudioConnected)))
	return link
}

func waitEvent(t *testing.T, loop *core.Loop, typ string, match func(events.Event) bool) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-loop.Events():
			if e.Type == typ && (match == nil || match(e)) {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return events.Event{}
		}
	}
}

func stateIs(state int) func(events.Event) bool {
	return func(e events.Event) bool {
		c, ok := e.Data.(StateChange)
		return ok && c.State == state
	}
}

func soundStateIs(state soundio.State) func(events.Event) bool {
	return func(e events.Event) bool {
		m, ok := e.Data.(map[string]any)
		return ok && m["code"] == int(state)
	}
}

func info(t *testing.T, ag *AudioGateway) GatewayInfo {
	t.Helper()
	i, err := ag.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	return i
}
