// Package hfp tracks remote audio gateways, arbitrates their ownership
// among client sessions and drives their connection, call and audio state
// machines on top of a Radio service.
package hfp

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

const (
	DefaultCommandTimeout    = 10 * time.Second
	DefaultInquiryDuration   = 5 * time.Second
	DefaultRestartInterval   = 5 * time.Second
	DefaultReconnectInterval = 5 * time.Second
	nameCacheTTL             = time.Hour
)

// Config holds the timing parameters of the registry.
type Config struct {
	Adapter           string
	CommandTimeout    time.Duration
	InquiryDuration   time.Duration
	RestartInterval   time.Duration
	ReconnectInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.InquiryDuration <= 0 {
		c.InquiryDuration = DefaultInquiryDuration
	}
	if c.RestartInterval <= 0 {
		c.RestartInterval = DefaultRestartInterval
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	return c
}

// HandsFree is the registry of audio gateways. It owns the radio service,
// the client sessions and the claims they hold.
type HandsFree struct {
	ctx   context.Context
	loop  *core.Loop
	store *config.Store
	radio Radio
	sound *soundio.SoundIo
	cfg   Config

	gateways map[string]*AudioGateway
	sessions map[string]*Session
	inquiry  *Inquiry
	names    *nameResolver

	capabilities uint32
	started      bool
	// wanted is cleared by an explicit Stop
	wanted     bool
	suppressed bool
	restart    *core.Timer
}

// New creates the registry and loads the known devices from the store. The
// radio service lives until ctx is cancelled or Stop is called.
func New(ctx context.Context, loop *core.Loop, store *config.Store, radio Radio, sound *soundio.SoundIo, cfg Config) *HandsFree {
	h := &HandsFree{
		ctx:          ctx,
		loop:         loop,
		store:        store,
		radio:        radio,
		sound:        sound,
		cfg:          cfg.withDefaults(),
		gateways:     map[string]*AudioGateway{},
		sessions:     map[string]*Session{},
		capabilities: DefaultCapabilities,
	}
	h.inquiry = &Inquiry{h: h}
	h.names = newNameResolver(h)

	for addr, auto := range store.HandsFree().Devices {
		parsed, err := ParseAddress(addr)
		if err != nil {
			logger.Warn("[hfp] ignoring known device %q: %v", addr, err)
			continue
		}
		ag := newGateway(h, parsed)
		ag.known = true
		ag.autoReconnect = auto
		h.gateways[parsed] = ag
	}
	logger.Info("[hfp] %d known audio gateways", len(h.gateways))
	return h
}

// Start brings the radio service up. An explicit start clears a restart
// suppression left by a resource error.
func (h *HandsFree) Start(ctx context.Context) error {
	return h.loop.Call(ctx, func() error {
		h.wanted = true
		h.suppressed = false
		return h.start()
	})
}

// Stop shuts the radio service down and disconnects every gateway.
func (h *HandsFree) Stop(ctx context.Context) error {
	return h.loop.Call(ctx, func() error {
		h.wanted = false
		h.restart.Stop()
		h.restart = nil
		h.stop()
		return nil
	})
}

// Close stops the radio service on shutdown.
func (h *HandsFree) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		logger.Debug("[hfp] stop on close: %v", err)
	}
}

// Status returns a snapshot of the options and registry.
func (h *HandsFree) Status(ctx context.Context) (Status, error) {
	var st Status
	err := h.loop.Call(ctx, func() error {
		opts := h.store.HandsFree()
		st = Status{
			SystemState:      h.started,
			AutoSave:         opts.AutoSave,
			SecMode:          string(opts.SecMode),
			AutoRestart:      opts.AutoRestart,
			AcceptUnknown:    opts.AcceptUnknown,
			VoicePersist:     opts.VoicePersist,
			VoiceAutoConnect: opts.VoiceAutoConnect,
			ServiceName:      opts.ServiceName,
			ServiceDesc:      opts.ServiceDesc,
			Capabilities:     h.capabilities,
			Inquiry:          h.inquiry.scanning,
			AudioGateways:    h.paths(),
		}
		return nil
	})
	return st, err
}

// AudioGateways returns the object paths of every gateway record.
func (h *HandsFree) AudioGateways(ctx context.Context) ([]string, error) {
	var paths []string
	err := h.loop.Call(ctx, func() error {
		paths = h.paths()
		return nil
	})
	return paths, err
}

// Gateways returns a snapshot of every gateway record.
func (h *HandsFree) Gateways(ctx context.Context) ([]GatewayInfo, error) {
	var out []GatewayInfo
	err := h.loop.Call(ctx, func() error {
		for _, addr := range slices.Sorted(maps.Keys(h.gateways)) {
			out = append(out, h.gateways[addr].info())
		}
		return nil
	})
	return out, err
}

// Gateway looks up the record of addr.
func (h *HandsFree) Gateway(ctx context.Context, addr string) (*AudioGateway, error) {
	addr, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	var ag *AudioGateway
	err = h.loop.Call(ctx, func() error {
		ag = h.gateways[addr]
		if ag == nil {
			return ErrNoSuchDevice
		}
		return nil
	})
	return ag, err
}

// StartAudio attaches the gateway at addr to the sound engine, opening its
// audio connection first when initiate is set.
func (h *HandsFree) StartAudio(ctx context.Context, addr string, initiate bool) error {
	ag, err := h.Gateway(ctx, addr)
	if err != nil {
		return err
	}
	return h.loop.Call(ctx, func() error {
		if ag.state == StateDestroyed {
			return ErrNoSuchDevice
		}
		return h.sound.StartWithDevice(ag.endpoint, initiate)
	})
}

// SetOptions applies a partial option update in a single store transaction.
func (h *HandsFree) SetOptions(ctx context.Context, o Options) error {
	var secmode config.SecMode
	if o.SecMode != nil {
		var ok bool
		if secmode, ok = config.ParseSecMode(*o.SecMode); !ok {
			return core.Failed(fmt.Sprintf("Invalid security mode %q", *o.SecMode))
		}
	}
	return h.loop.Call(ctx, func() error {
		prev := h.store.HandsFree()
		err := h.store.UpdateHandsFree(func(c *config.HandsFreeConfig) {
			setIf(&c.AutoSave, o.AutoSave)
			setIf(&c.AutoRestart, o.AutoRestart)
			setIf(&c.AcceptUnknown, o.AcceptUnknown)
			setIf(&c.VoicePersist, o.VoicePersist)
			setIf(&c.VoiceAutoConnect, o.VoiceAutoConnect)
			setIf(&c.ServiceName, o.ServiceName)
			setIf(&c.ServiceDesc, o.ServiceDesc)
			if o.SecMode != nil {
				c.SecMode = secmode
			}
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSaveConfig, err)
		}
		setIf(&h.capabilities, o.Capabilities)

		next := h.store.HandsFree()
		if h.started && (prev.SecMode != next.SecMode || prev.ServiceName != next.ServiceName ||
			prev.ServiceDesc != next.ServiceDesc || o.Capabilities != nil) {
			logger.Info("[hfp] radio settings changed, applied at next start")
		}
		if prev.AcceptUnknown && !next.AcceptUnknown {
			h.dropUnknown()
		}
		if next.AutoRestart && !h.started && h.wanted {
			h.scheduleRestart()
		}
		return nil
	})
}

// SaveSettings writes the options regardless of autosave.
func (h *HandsFree) SaveSettings(ctx context.Context) error {
	return h.loop.Call(ctx, func() error {
		if err := h.store.Save(); err != nil {
			return fmt.Errorf("%w: %v", ErrSaveConfig, err)
		}
		return nil
	})
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (h *HandsFree) paths() []string {
	paths := make([]string, 0, len(h.gateways))
	for _, addr := range slices.Sorted(maps.Keys(h.gateways)) {
		paths = append(paths, h.gateways[addr].path)
	}
	return paths
}

func (h *HandsFree) radioConfig() RadioConfig {
	opts := h.store.HandsFree()
	return RadioConfig{
		Adapter:      h.cfg.Adapter,
		SecMode:      opts.SecMode,
		ServiceName:  opts.ServiceName,
		ServiceDesc:  opts.ServiceDesc,
		Capabilities: h.capabilities,
	}
}

func (h *HandsFree) start() error {
	if h.started {
		return nil
	}
	h.restart.Stop()
	h.restart = nil

	if err := h.radio.Start(h.ctx, h.radioConfig(), &radioEvents{h: h}); err != nil {
		logger.Error("[hfp] could not start bluetooth: %v", err)
		if core.SuppressesRestart(err) {
			logger.Warn("[hfp] automatic restart disabled until an explicit start")
			h.suppressed = true
		}
		h.scheduleRestart()
		return err
	}

	h.started = true
	logger.Info("[hfp] bluetooth started")
	h.loop.Emit(events.TypeSystemState, SystemStateEvent{Started: true})
	for _, addr := range slices.Sorted(maps.Keys(h.gateways)) {
		ag := h.gateways[addr]
		if ag.autoReconnect {
			if err := ag.connect(); err != nil {
				logger.Warn("[hfp] auto-connect %s: %v", addr, err)
			}
		}
	}
	return nil
}

func (h *HandsFree) stop() {
	if !h.started {
		return
	}
	h.shutdown()
	h.radio.Stop()
	logger.Info("[hfp] bluetooth stopped")
}

// shutdown resets the registry after the radio went away.
func (h *HandsFree) shutdown() {
	h.started = false
	h.inquiry.finish()
	for _, addr := range slices.Sorted(maps.Keys(h.gateways)) {
		ag := h.gateways[addr]
		ag.stopReconnect()
		ag.disconnect(false, ErrShutDown)
		h.evaluate(ag)
	}
	h.names.fail(ErrShutDown)
	h.loop.Emit(events.TypeSystemState, SystemStateEvent{Started: false})
}

// radioLost handles an unsolicited radio shutdown.
func (h *HandsFree) radioLost(err error) {
	if !h.started {
		return
	}
	logger.Warn("[hfp] bluetooth went away: %v", err)
	if core.SuppressesRestart(err) {
		h.suppressed = true
	}
	h.shutdown()
	h.radio.Stop()
	h.scheduleRestart()
}

func (h *HandsFree) scheduleRestart() {
	if h.restart != nil || h.suppressed || !h.wanted || !h.store.HandsFree().AutoRestart {
		return
	}
	h.restart = h.loop.AfterFunc(h.cfg.RestartInterval, func() {
		h.restart = nil
		if h.started || !h.wanted {
			return
		}
		logger.Debug("[hfp] restarting bluetooth")
		_ = h.start()
	})
}

func (h *HandsFree) persistDevice(addr string, known, autoReconnect bool) error {
	err := h.store.UpdateHandsFree(func(c *config.HandsFreeConfig) {
		if known {
			c.Devices[addr] = autoReconnect
		} else {
			delete(c.Devices, addr)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveConfig, err)
	}
	return nil
}

func (h *HandsFree) register(ag *AudioGateway) {
	h.gateways[ag.addr] = ag
	logger.Info("[hfp] audio gateway %s added", ag.addr)
	h.loop.Emit(events.TypeGatewayAdded, ag.ref())
}

// evaluate destroys a gateway record nobody needs any more: unclaimed, not
// known and without a live connection.
func (h *HandsFree) evaluate(ag *AudioGateway) {
	if ag.state == StateDestroyed || ag.owner != "" || ag.known {
		return
	}
	if ag.state > StateDisconnected {
		return
	}
	h.destroy(ag)
}

func (h *HandsFree) destroy(ag *AudioGateway) {
	ag.stopReconnect()
	ag.stopRing()
	ag.failPending(ErrDisconnected)
	ag.setState(StateDestroyed)
	delete(h.gateways, ag.addr)
	logger.Info("[hfp] audio gateway %s removed", ag.addr)
	h.loop.Emit(events.TypeGatewayRemoved, ag.ref())
}

// dropUnknown disconnects unclaimed unknown gateways once they are no longer
// admitted.
func (h *HandsFree) dropUnknown() {
	for _, addr := range slices.Sorted(maps.Keys(h.gateways)) {
		ag := h.gateways[addr]
		if ag.owner == "" && !ag.known {
			ag.disconnect(true, nil)
			h.evaluate(ag)
		}
	}
}

// acceptIncoming is the admission policy for connections initiated by a
// gateway.
func (h *HandsFree) acceptIncoming(addr string) bool {
	if !h.started {
		return false
	}
	opts := h.store.HandsFree()
	ag := h.gateways[addr]
	switch {
	case ag == nil && !opts.AcceptUnknown:
		logger.Info("[hfp] refusing connection from unknown device %s", addr)
		return false
	case ag == nil:
		ag = newGateway(h, addr)
		h.register(ag)
	case ag.owner == "" && !ag.known && !opts.AcceptUnknown:
		logger.Info("[hfp] refusing connection from unclaimed device %s", addr)
		ag.disconnect(true, nil)
		h.evaluate(ag)
		return false
	}
	ag.incoming()
	return true
}

// audioConnected applies the voice connection policy once a gateway's audio
// link is up.
func (h *HandsFree) audioConnected(ag *AudioGateway) {
	if h.sound.Endpoint() == soundio.Endpoint(ag.endpoint) {
		h.sound.EndpointReady(ag.endpoint)
		return
	}
	if ag.owner != "" {
		return
	}
	if !ag.known || !h.store.HandsFree().VoiceAutoConnect {
		logger.Info("[hfp] refusing audio connection from %s", ag.addr)
		ag.closeAudio()
		return
	}
	if h.sound.State() == soundio.StateStopped {
		if err := h.sound.StartWithDevice(ag.endpoint, false); err != nil {
			logger.Warn("[hfp] could not attach %s to the sound engine: %v", ag.addr, err)
		}
	}
}
