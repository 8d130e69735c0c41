package hfp

import (
	"context"
	"maps"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

// AudioGateway is a remote device implementing the gateway side of the
// hands-free profile. Its fields are owned by the loop; the exported methods
// taking a context are safe to call from any goroutine.
type AudioGateway struct {
	hf   *HandsFree
	addr string
	path string

	state State
	call  CallState
	audio AudioState

	known         bool
	owner         string
	autoReconnect bool
	voluntary     bool

	features   Features
	raw        uint32
	indicators map[string]int
	name       string

	// disconnect once the persisting audio connection drops
	unbindOnAudioClose bool

	link     AudioLink
	endpoint *gatewayEndpoint

	// gen invalidates connection callbacks of a previous attempt
	gen       uint64
	pending   map[uint64]*pendingCommand
	nextCmd   uint64
	reconnect *core.Timer
	ring      *core.Timer
	ringing   bool
}

func newGateway(hf *HandsFree, addr string) *AudioGateway {
	ag := &AudioGateway{
		hf:         hf,
		addr:       addr,
		path:       GatewayPath(addr),
		state:      StateDisconnected,
		call:       CallIdle,
		audio:      AudioDisconnected,
		features:   emptyFeatures(),
		indicators: map[string]int{},
		pending:    map[uint64]*pendingCommand{},
	}
	ag.endpoint = &gatewayEndpoint{ag: ag}
	if name, ok := hf.names.cached(addr); ok {
		ag.name = name
	}
	return ag
}

func (ag *AudioGateway) Address() string { return ag.addr }
func (ag *AudioGateway) Path() string    { return ag.path }

func (ag *AudioGateway) ref() GatewayRef {
	return GatewayRef{Path: ag.path, Address: ag.addr}
}

// Info returns a snapshot of the gateway.
func (ag *AudioGateway) Info(ctx context.Context) (GatewayInfo, error) {
	var info GatewayInfo
	err := ag.hf.loop.Call(ctx, func() error {
		if ag.state == StateDestroyed {
			return ErrNoSuchDevice
		}
		info = ag.info()
		return nil
	})
	return info, err
}

// Indicators returns the last reported indicator values.
func (ag *AudioGateway) Indicators(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	err := ag.hf.loop.Call(ctx, func() error {
		if ag.state == StateDestroyed {
			return ErrNoSuchDevice
		}
		out = maps.Clone(ag.indicators)
		return nil
	})
	return out, err
}

// Connect starts a service level connection. It returns once the attempt is
// under way; the outcome is reported through state events.
func (ag *AudioGateway) Connect(ctx context.Context) error {
	return ag.hf.loop.Call(ctx, ag.connect)
}

// Disconnect tears down the service level and audio connections.
func (ag *AudioGateway) Disconnect(ctx context.Context) error {
	return ag.hf.loop.Call(ctx, func() error {
		if ag.state == StateDestroyed {
			return ErrNoSuchDevice
		}
		ag.stopReconnect()
		ag.disconnect(true, nil)
		ag.hf.evaluate(ag)
		return nil
	})
}

// OpenAudio requests an audio connection.
func (ag *AudioGateway) OpenAudio(ctx context.Context) error {
	return ag.hf.loop.Call(ctx, ag.openAudio)
}

// CloseAudio drops the audio connection, detaching the gateway from the
// sound engine.
func (ag *AudioGateway) CloseAudio(ctx context.Context) error {
	return ag.hf.loop.Call(ctx, func() error {
		if ag.state == StateDestroyed {
			return ErrNoSuchDevice
		}
		ag.closeAudio()
		return nil
	})
}

// SetAutoReconnect toggles reconnection after link loss. Enabling it needs
// the device to be known or claimed.
func (ag *AudioGateway) SetAutoReconnect(ctx context.Context, enable bool) error {
	return ag.hf.loop.Call(ctx, func() error {
		return ag.setAutoReconnect(enable)
	})
}

func (ag *AudioGateway) info() GatewayInfo {
	info := GatewayInfo{
		Path:          ag.path,
		Address:       ag.addr,
		Name:          ag.name,
		State:         ag.state.String(),
		StateCode:     ag.state,
		CallState:     ag.call.String(),
		CallStateCode: ag.call,
		AudioState:    ag.audio.String(),
		AudioCode:     ag.audio,
		Known:         ag.known,
		Claimed:       ag.owner != "",
		AutoReconnect: ag.autoReconnect,
		Voluntary:     ag.voluntary,
		Features:      maps.Clone(ag.features),
		Indicators:    maps.Clone(ag.indicators),
	}
	if ag.state == StateConnected {
		info.RawFeatures = ag.raw
	}
	return info
}

func (ag *AudioGateway) connect() error {
	switch {
	case ag.state == StateDestroyed:
		return ErrNoSuchDevice
	case ag.state >= StateConnecting:
		return nil
	case !ag.hf.started:
		return ErrNotStarted
	}
	ag.stopReconnect()
	ag.voluntary = false
	ag.gen++
	gen := ag.gen
	ag.setState(StateConnecting)
	loop := ag.hf.loop
	ag.hf.radio.Connect(ag.addr, func(info SLCInfo, err error) {
		loop.Post(func() { ag.connectDone(gen, info, err) })
	})
	return nil
}

func (ag *AudioGateway) connectDone(gen uint64, info SLCInfo, err error) {
	if gen != ag.gen || ag.state != StateConnecting {
		return
	}
	if err != nil {
		logger.Info("[ag] %s connection failed: %v", ag.addr, err)
		ag.voluntary = false
		ag.setState(StateDisconnected)
		ag.scheduleReconnect()
		ag.hf.evaluate(ag)
		return
	}
	ag.established(info)
}

// incoming marks a connection initiated by the gateway.
func (ag *AudioGateway) incoming() {
	if ag.state != StateDisconnected {
		return
	}
	ag.stopReconnect()
	ag.voluntary = false
	ag.gen++
	ag.setState(StateConnecting)
}

func (ag *AudioGateway) established(info SLCInfo) {
	ag.features = negotiateFeatures(info)
	ag.raw = info.Features
	ag.indicators = maps.Clone(info.Indicators)
	if ag.indicators == nil {
		ag.indicators = map[string]int{}
	}
	ag.setState(StateConnected)
	ag.updateCall()
	ag.hf.names.request(ag.addr)
}

// disconnect forces the gateway to Disconnected. A voluntary disconnect
// tells the radio to drop the link; otherwise the link is already gone.
func (ag *AudioGateway) disconnect(voluntary bool, cause error) {
	if ag.state <= StateDisconnected {
		return
	}
	ag.gen++
	ag.voluntary = voluntary
	ag.unbindOnAudioClose = false
	ag.audioDown(cause)
	if voluntary {
		ag.hf.radio.Disconnect(ag.addr)
	}
	ag.failPending(ErrDisconnected)
	ag.stopRing()
	ag.features = emptyFeatures()
	ag.raw = 0
	ag.indicators = map[string]int{}
	ag.setCall(CallIdle)
	ag.setState(StateDisconnected)
}

// linkLost handles a connection dropped by the radio.
func (ag *AudioGateway) linkLost(err error) {
	if ag.state <= StateDisconnected {
		return
	}
	if err != nil {
		logger.Info("[ag] %s link lost: %v", ag.addr, err)
	}
	ag.disconnect(false, err)
	ag.scheduleReconnect()
	ag.hf.evaluate(ag)
}

func (ag *AudioGateway) openAudio() error {
	switch {
	case ag.state == StateDestroyed:
		return ErrNoSuchDevice
	case ag.state != StateConnected:
		return ErrNotConnected
	case ag.audio != AudioDisconnected:
		return nil
	}
	if err := ag.hf.radio.OpenAudio(ag.addr); err != nil {
		return err
	}
	ag.setAudio(AudioConnecting)
	return nil
}

func (ag *AudioGateway) closeAudio() {
	if ag.audio == AudioDisconnected {
		return
	}
	ag.audioDown(nil)
	ag.hf.radio.CloseAudio(ag.addr)
}

// audioConnecting records an audio connection request from the gateway.
func (ag *AudioGateway) audioConnecting() {
	if ag.state != StateConnected || ag.audio != AudioDisconnected {
		return
	}
	ag.setAudio(AudioConnecting)
}

func (ag *AudioGateway) audioUp(link AudioLink) {
	if ag.state != StateConnected {
		if err := link.Close(); err != nil {
			logger.Debug("[ag] %s close stray audio link: %v", ag.addr, err)
		}
		return
	}
	if ag.link != nil && ag.link != link {
		if err := ag.link.Close(); err != nil {
			logger.Debug("[ag] %s close previous audio link: %v", ag.addr, err)
		}
	}
	ag.link = link
	ag.setAudio(AudioConnected)
	ag.hf.audioConnected(ag)
}

// audioDown detaches the gateway from the sound engine and releases the
// audio link. A nil cause is a local request.
func (ag *AudioGateway) audioDown(cause error) {
	if ag.audio == AudioDisconnected {
		return
	}
	ag.hf.sound.Detach(ag.endpoint, cause)
	if ag.link != nil {
		if err := ag.link.Close(); err != nil {
			logger.Debug("[ag] %s close audio link: %v", ag.addr, err)
		}
		ag.link = nil
	}
	ag.setAudio(AudioDisconnected)

	if ag.unbindOnAudioClose && ag.state == StateConnected {
		ag.unbindOnAudioClose = false
		if !ag.known && ag.owner == "" {
			ag.disconnect(true, nil)
		}
	}
}

func (ag *AudioGateway) setAutoReconnect(enable bool) error {
	if ag.state == StateDestroyed {
		return ErrNoSuchDevice
	}
	if enable && !ag.known && ag.owner == "" {
		return ErrNotKnownOrClaimed
	}
	if ag.autoReconnect == enable {
		return nil
	}
	if ag.known {
		if err := ag.hf.persistDevice(ag.addr, true, enable); err != nil {
			return err
		}
	}
	ag.autoReconnect = enable
	ag.hf.loop.Emit(events.TypeGatewayAutoConn, AutoReconnectEvent{GatewayRef: ag.ref(), AutoReconnect: enable})
	if !enable {
		ag.stopReconnect()
	} else if ag.state == StateDisconnected && ag.hf.started {
		if err := ag.connect(); err != nil {
			logger.Warn("[ag] %s auto-reconnect: %v", ag.addr, err)
		}
	}
	return nil
}

func (ag *AudioGateway) setKnown(known bool) error {
	if ag.known == known {
		return nil
	}
	if err := ag.hf.persistDevice(ag.addr, known, ag.autoReconnect); err != nil {
		return err
	}
	ag.known = known
	return nil
}

func (ag *AudioGateway) scheduleReconnect() {
	if !ag.autoReconnect || !ag.hf.started || ag.reconnect != nil {
		return
	}
	ag.reconnect = ag.hf.loop.AfterFunc(ag.hf.cfg.ReconnectInterval, func() {
		ag.reconnect = nil
		if ag.state != StateDisconnected || !ag.autoReconnect {
			return
		}
		logger.Debug("[ag] %s reconnecting", ag.addr)
		if err := ag.connect(); err != nil {
			logger.Warn("[ag] %s reconnect: %v", ag.addr, err)
		}
	})
}

func (ag *AudioGateway) stopReconnect() {
	ag.reconnect.Stop()
	ag.reconnect = nil
}

func (ag *AudioGateway) setState(s State) {
	if ag.state == s {
		return
	}
	logger.Info("[ag] %s %s -> %s", ag.addr, ag.state, s)
	ag.state = s
	ag.hf.loop.Emit(events.TypeGatewayState, StateChange{GatewayRef: ag.ref(), State: int(s), Name: s.String()})
}

func (ag *AudioGateway) setCall(s CallState) {
	if ag.call == s {
		return
	}
	logger.Debug("[ag] %s call %s -> %s", ag.addr, ag.call, s)
	ag.call = s
	ag.hf.loop.Emit(events.TypeGatewayCall, StateChange{GatewayRef: ag.ref(), State: int(s), Name: s.String()})
}

func (ag *AudioGateway) setAudio(s AudioState) {
	if ag.audio == s {
		return
	}
	logger.Debug("[ag] %s audio %s -> %s", ag.addr, ag.audio, s)
	ag.audio = s
	ag.hf.loop.Emit(events.TypeGatewayAudio, StateChange{GatewayRef: ag.ref(), State: int(s), Name: s.String()})
}
