package hfp

import (
	"context"

	"github.com/b0bbywan/go-hfpd/logger"
)

// radioEvents forwards radio notifications into the loop.
type radioEvents struct {
	h *HandsFree
}

var _ RadioHandler = (*radioEvents)(nil)

func (r *radioEvents) gateway(addr string, fn func(ag *AudioGateway)) {
	h := r.h
	h.loop.Post(func() {
		if ag := h.gateways[addr]; ag != nil {
			fn(ag)
		}
	})
}

func (r *radioEvents) AcceptIncoming(addr string) bool {
	addr, err := ParseAddress(addr)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(r.h.ctx, r.h.cfg.CommandTimeout)
	defer cancel()
	var accept bool
	if err := r.h.loop.Call(ctx, func() error {
		accept = r.h.acceptIncoming(addr)
		return nil
	}); err != nil {
		logger.Warn("[hfp] admission of %s: %v", addr, err)
		return false
	}
	return accept
}

func (r *radioEvents) Connected(addr string, info SLCInfo) {
	h := r.h
	h.loop.Post(func() {
		ag := h.gateways[addr]
		if ag == nil || ag.state == StateConnected {
			return
		}
		if ag.state == StateDisconnected {
			ag.incoming()
		}
		ag.established(info)
	})
}

func (r *radioEvents) Disconnected(addr string, err error) {
	r.gateway(addr, func(ag *AudioGateway) { ag.linkLost(err) })
}

func (r *radioEvents) Discovered(addr string, class uint32) {
	h := r.h
	h.loop.Post(func() { h.inquiry.discovered(addr, class) })
}

func (r *radioEvents) InquiryDone() {
	h := r.h
	h.loop.Post(h.inquiry.finish)
}

func (r *radioEvents) Indicator(addr, name string, value int) {
	r.gateway(addr, func(ag *AudioGateway) { ag.indicator(name, value) })
}

func (r *radioEvents) Ring(addr, callerID string) {
	r.gateway(addr, func(ag *AudioGateway) { ag.rang(callerID) })
}

func (r *radioEvents) AudioConnecting(addr string) {
	r.gateway(addr, func(ag *AudioGateway) { ag.audioConnecting() })
}

func (r *radioEvents) AudioConnected(addr string, link AudioLink) {
	h := r.h
	h.loop.Post(func() {
		ag := h.gateways[addr]
		if ag == nil {
			if err := link.Close(); err != nil {
				logger.Debug("[hfp] close audio link of unknown %s: %v", addr, err)
			}
			return
		}
		ag.audioUp(link)
	})
}

func (r *radioEvents) AudioDisconnected(addr string, err error) {
	r.gateway(addr, func(ag *AudioGateway) {
		cause := err
		if cause == nil {
			cause = ErrAudioClosed
		}
		ag.audioDown(cause)
		ag.hf.evaluate(ag)
	})
}

func (r *radioEvents) Stopped(err error) {
	h := r.h
	h.loop.Post(func() { h.radioLost(err) })
}
