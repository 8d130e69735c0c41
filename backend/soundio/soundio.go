// Package soundio routes audio between the local sound hardware and one
// endpoint at a time: an audio gateway, a file, a loopback path or a memory
// buffer.
package soundio

import (
	"context"
	"fmt"
	"sort"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

// DriverInfo names a registered driver.
type DriverInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SoundIo is the routing engine. Its state belongs to the loop: exported
// methods taking a context may be called from any goroutine, the others
// only from loop tasks.
type SoundIo struct {
	loop    *core.Loop
	store   *config.Store
	drivers map[string]Driver

	state   State
	ep      Endpoint
	pending GatewayEndpoint
	pump    *pump
	mute    bool
	snoop   Snoop
	membuf  *Membuf
	actual  Buffering
}

type startOpts struct {
	dsp     bool
	monitor *levelMonitor
}

func New(loop *core.Loop, store *config.Store, drivers ...Driver) *SoundIo {
	s := &SoundIo{
		loop:    loop,
		store:   store,
		drivers: make(map[string]Driver, len(drivers)),
		state:   StateDeconfigured,
	}
	for _, d := range drivers {
		s.drivers[d.Name()] = d
	}
	if _, ok := s.drivers[store.Audio().Driver]; ok {
		s.state = StateStopped
	} else {
		logger.Warn("[soundio] driver %q not available, sound is deconfigured", store.Audio().Driver)
	}
	return s
}

// GetDrivers lists the registered drivers by name.
func (s *SoundIo) GetDrivers() []DriverInfo {
	infos := make([]DriverInfo, 0, len(s.drivers))
	for _, d := range s.drivers {
		infos = append(infos, DriverInfo{Name: d.Name(), Description: d.Description()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ProbeDevices enumerates the devices of a driver.
func (s *SoundIo) ProbeDevices(name string) ([]DeviceInfo, error) {
	d, ok := s.drivers[name]
	if !ok {
		return nil, core.Failed(fmt.Sprintf("Unknown driver %q", name))
	}
	devices, err := d.Devices()
	if err != nil {
		return nil, core.Wrap(core.ErrNameSoundCardFailed, "Could not probe devices", err)
	}
	return devices, nil
}

func (s *SoundIo) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Call(ctx, func() error {
		st = s.status()
		return nil
	})
	return st, err
}

func (s *SoundIo) Stop(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		s.stop(nil)
		return nil
	})
}

// StartWithFile plays path to the speaker, or records the microphone to
// path when write is set.
func (s *SoundIo) StartWithFile(ctx context.Context, path string, write bool) error {
	if path == "" {
		return core.Failed("File name required")
	}
	return s.loop.Call(ctx, func() error {
		return s.start(newFileEndpoint(path, write), StateFile, startOpts{})
	})
}

func (s *SoundIo) StartLoopback(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		return s.start(newLoopback(), StateLoopback, startOpts{})
	})
}

// StartWithMemoryBuffer streams to and from the memory buffer. size is the
// capacity of each region in samples; a size change discards the buffer.
// A positive reportInterval emits soundio.monitor every reportInterval
// captured samples.
func (s *SoundIo) StartWithMemoryBuffer(ctx context.Context, capture, playback bool, size, reportInterval int) error {
	if !capture && !playback {
		return core.Failed("Memory buffer needs capture or playback")
	}
	if size <= 0 {
		return core.Failed("Invalid memory buffer size")
	}
	return s.loop.Call(ctx, func() error {
		if s.state == StateMembuf {
			s.stop(nil)
		}
		if s.membuf == nil || s.membuf.Size() != size {
			s.membuf = NewMembuf(size)
		}
		s.membuf.Arm(capture, playback)
		return s.start(s.membuf, StateMembuf, startOpts{monitor: newLevelMonitor(reportInterval)})
	})
}

// ClearMemoryBuffer stops a memory buffer stream and frees the buffer.
func (s *SoundIo) ClearMemoryBuffer(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		if s.state == StateMembuf {
			s.stop(nil)
		}
		s.membuf = nil
		return nil
	})
}

// ReadMemoryBuffer copies both regions of the memory buffer.
func (s *SoundIo) ReadMemoryBuffer(ctx context.Context) (MembufContents, error) {
	var c MembufContents
	err := s.loop.Call(ctx, func() error {
		if err := s.idleMembuf(); err != nil {
			return err
		}
		c = MembufContents{
			Size:     s.membuf.Size(),
			Captured: s.membuf.Captured(),
			Playback: s.membuf.Playback(),
		}
		return nil
	})
	return c, err
}

// LoadMemoryBuffer replaces the playback region with samples, truncated to
// the buffer size. A buffer of size samples is created when none exists or
// the size differs.
func (s *SoundIo) LoadMemoryBuffer(ctx context.Context, size int, samples []int16) error {
	if size <= 0 {
		return core.Failed("Invalid memory buffer size")
	}
	return s.loop.Call(ctx, func() error {
		if s.state == StateMembuf {
			return core.Failed("Memory buffer is streaming")
		}
		if s.membuf == nil || s.membuf.Size() != size {
			s.membuf = NewMembuf(size)
		}
		s.membuf.Load(samples)
		return nil
	})
}

func (s *SoundIo) idleMembuf() error {
	switch {
	case s.membuf == nil:
		return core.Failed("No memory buffer")
	case s.state == StateMembuf:
		return core.Failed("Memory buffer is streaming")
	}
	return nil
}

// SetDriver selects the hardware driver and persists the choice.
func (s *SoundIo) SetDriver(ctx context.Context, name, opts string) error {
	return s.loop.Call(ctx, func() error {
		if s.state.Streaming() {
			return core.Failed("Cannot change driver while streaming")
		}
		if _, ok := s.drivers[name]; !ok {
			return core.Failed(fmt.Sprintf("Unknown driver %q", name))
		}
		if err := s.store.UpdateAudio(func(a *config.AudioConfig) {
			a.Driver = name
			a.DriverOpts = opts
		}); err != nil {
			return core.Wrap(core.ErrNameFailed, "Could not save driver setting", err)
		}
		logger.Info("[soundio] driver set to %s %q", name, opts)
		s.setState(StateStopped)
		return nil
	})
}

// SetBuffering stores the buffering hints in milliseconds. They apply to the
// next stream.
func (s *SoundIo) SetBuffering(ctx context.Context, hints Buffering) error {
	if hints.PacketInterval < 0 || hints.MinBufferFill < 0 || hints.JitterWindow < 0 {
		return core.Failed("Buffering hints must not be negative")
	}
	return s.loop.Call(ctx, func() error {
		if err := s.store.UpdateAudio(func(a *config.AudioConfig) {
			a.PacketInterval = hints.PacketInterval
			a.MinBufferFill = hints.MinBufferFill
			a.JitterWindow = hints.JitterWindow
		}); err != nil {
			return core.Wrap(core.ErrNameFailed, "Could not save buffering settings", err)
		}
		return nil
	})
}

// SetSnoopFile records the streamed audio of the next streams to path. An
// empty path disables snooping.
func (s *SoundIo) SetSnoopFile(ctx context.Context, snoop Snoop) error {
	return s.loop.Call(ctx, func() error {
		s.snoop = snoop
		return nil
	})
}

func (s *SoundIo) SetMute(ctx context.Context, mute bool) error {
	return s.loop.Call(ctx, func() error {
		if s.mute == mute {
			return nil
		}
		s.mute = mute
		if s.pump != nil {
			s.pump.mute.Store(mute)
		}
		s.loop.Emit(events.TypeSoundMute, map[string]bool{"mute": mute})
		return nil
	})
}

// Close stops any stream; the loop must still be running.
func (s *SoundIo) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*minWatchdog)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Debug("[soundio] stop on close: %v", err)
	}
}

// Endpoint returns the attached or pending endpoint.
func (s *SoundIo) Endpoint() Endpoint {
	if s.pending != nil {
		return s.pending
	}
	return s.ep
}

// State returns the current engine state.
func (s *SoundIo) State() State { return s.state }

// StartWithDevice attaches an audio gateway. When its audio link is not
// connected the link is opened if initiate is set and the stream starts from
// EndpointReady; otherwise the call fails.
func (s *SoundIo) StartWithDevice(ep GatewayEndpoint, initiate bool) error {
	if s.state == StateDeconfigured {
		return core.Failed("Sound driver not configured")
	}
	if s.ep == Endpoint(ep) || s.pending == ep {
		return nil
	}
	if ep.AudioConnected() {
		return s.start(ep, StateGateway, startOpts{dsp: true})
	}
	if !initiate {
		return core.Failed("Audio gateway has no audio connection")
	}
	s.stop(nil)
	if err := ep.OpenAudio(); err != nil {
		return err
	}
	s.pending = ep
	s.setState(StateGatewayConnecting)
	s.loop.Emit(events.TypeSoundGateway, map[string]string{"path": ep.Name()})
	return nil
}

// EndpointReady starts streaming with a pending gateway whose audio link has
// come up.
func (s *SoundIo) EndpointReady(ep GatewayEndpoint) {
	if s.pending != ep {
		return
	}
	s.pending = nil
	if err := s.start(ep, StateGateway, startOpts{dsp: true}); err != nil {
		logger.Error("[soundio] could not start stream with %s: %v", ep.Name(), err)
		s.setState(StateStopped)
		s.loop.Emit(events.TypeSoundGateway, map[string]string{"path": ""})
		s.emitAbort(err)
	}
}

// Detach removes ep from the engine if it is attached or pending. A nil cause
// is a plain stop, any other cause reports an aborted stream.
func (s *SoundIo) Detach(ep Endpoint, cause error) {
	if ep == nil || s.Endpoint() != ep {
		return
	}
	s.stop(cause)
}

func (s *SoundIo) status() Status {
	audio := s.store.Audio()
	st := Status{
		State:      s.state.String(),
		StateCode:  s.state,
		Driver:     audio.Driver,
		DriverOpts: audio.DriverOpts,
		Mute:       s.mute,
		Hints: Buffering{
			PacketInterval: audio.PacketInterval,
			MinBufferFill:  audio.MinBufferFill,
			JitterWindow:   audio.JitterWindow,
		},
		Actual: s.actual,
		Snoop:  s.snoop,
	}
	if ep := s.Endpoint(); ep != nil {
		st.Endpoint = ep.Name()
	}
	if s.membuf != nil {
		st.MembufSize = s.membuf.Size()
	}
	return st
}

func (s *SoundIo) setState(state State) {
	if s.state == state {
		return
	}
	logger.Debug("[soundio] state %s -> %s", s.state, state)
	s.state = state
	s.loop.Emit(events.TypeSoundState, map[string]any{"state": state.String(), "code": int(state)})
}

func (s *SoundIo) emitAbort(err error) {
	s.loop.Emit(events.TypeSoundAborted, AbortReport{
		Name:        core.NameOf(err),
		Description: err.Error(),
	})
}

// start detaches the current endpoint and streams with ep.
func (s *SoundIo) start(ep Endpoint, state State, opts startOpts) error {
	audio := s.store.Audio()
	driver, ok := s.drivers[audio.Driver]
	if !ok {
		return core.Failed("Sound driver not configured")
	}

	s.stop(nil)
	announced := s.state == StateGatewayConnecting

	packet := packetSize(audio.PacketInterval)
	if err := ep.Open(packet); err != nil {
		return core.Wrap(core.ErrNameFailed, fmt.Sprintf("Could not open %s", ep.Name()), err)
	}
	hw, err := driver.Open(audio.DriverOpts, packet)
	if err != nil {
		ep.Close()
		return core.Wrap(core.ErrNameSoundCardFailed, "Could not open sound card", err)
	}

	buffer := ep.BufferSize()
	if buffer == 0 {
		buffer = hw.BufferSize()
	}
	plan := negotiate(packet, buffer,
		SamplesFor(msDuration(audio.MinBufferFill)),
		SamplesFor(msDuration(audio.JitterWindow)))

	snoop, err := openSnoop(s.snoop)
	if err != nil {
		logger.Warn("[soundio] could not open snoop file %s: %v", s.snoop.Path, err)
	}

	var p *pump
	p = newPump(hw, ep, plan, pumpHooks{
		skew: func(reports []SkewReport) {
			s.loop.Post(func() {
				if s.pump != p {
					return
				}
				for _, r := range reports {
					s.loop.Emit(events.TypeSoundSkew, r)
				}
			})
		},
		monitor: func(reports []MonitorReport) {
			s.loop.Post(func() {
				if s.pump != p {
					return
				}
				for _, r := range reports {
					s.loop.Emit(events.TypeSoundMonitor, r)
				}
			})
		},
		exit: func(err error) {
			s.loop.Post(func() {
				if s.pump != p {
					return
				}
				if err != nil {
					logger.Warn("[soundio] stream with %s aborted: %v", ep.Name(), err)
				} else {
					logger.Info("[soundio] stream with %s finished", ep.Name())
				}
				s.stop(err)
			})
		},
	})
	p.snoop = snoop
	p.monitor = opts.monitor
	p.mute.Store(s.mute)
	if opts.dsp {
		p.dsp = newDSP(audio.DSP, packet)
	}

	s.ep = ep
	s.pump = p
	s.actual = plan.actual()
	p.start()

	logger.Info("[soundio] streaming with %s (packet %d, fill %d, jitter %d, buffer %d)",
		ep.Name(), plan.packet, plan.fill, plan.jitter, plan.capacity)
	s.setState(state)
	if ep.Kind() == KindGateway && !announced {
		s.loop.Emit(events.TypeSoundGateway, map[string]string{"path": ep.Name()})
	}
	return nil
}

// stop ends the current stream or pending gateway attachment.
func (s *SoundIo) stop(cause error) {
	ep := s.Endpoint()
	if ep == nil {
		return
	}

	if p := s.pump; p != nil {
		s.pump = nil
		if !p.halt() {
			logger.Error("[soundio] pump did not exit within %v, abandoning it", p.watchdog)
			p.detach()
		}
		s.ep.Close()
	}
	s.ep = nil
	s.pending = nil
	s.actual = Buffering{}

	s.setState(StateStopped)
	if ep.Kind() == KindGateway {
		s.loop.Emit(events.TypeSoundGateway, map[string]string{"path": ""})
	}
	if cause != nil {
		s.emitAbort(cause)
	}
}
