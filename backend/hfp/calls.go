package hfp

import (
	"time"

	"github.com/b0bbywan/go-hfpd/events"
)

// ringTimeout ends an emulated incoming call when the gateway stops ringing
// without reporting call setup progress.
const ringTimeout = 5 * time.Second

func (ag *AudioGateway) indicator(name string, value int) {
	if ag.state != StateConnected {
		return
	}
	if old, ok := ag.indicators[name]; ok && old == value {
		return
	}
	ag.indicators[name] = value
	ag.hf.loop.Emit(events.TypeGatewayIndicator, IndicatorEvent{GatewayRef: ag.ref(), Indicator: name, Value: value})

	switch name {
	case "call":
		ag.stopRing()
		ag.updateCall()
	case "callsetup", "call_setup", "callheld":
		ag.updateCall()
	}
}

func (ag *AudioGateway) rang(callerID string) {
	if ag.state != StateConnected {
		return
	}
	ag.hf.loop.Emit(events.TypeGatewayRing, RingEvent{GatewayRef: ag.ref(), CallerID: callerID})
	if ag.features["CallSetupIndicator"] {
		return
	}
	ag.ring.Stop()
	ag.ringing = true
	ag.ring = ag.hf.loop.AfterFunc(ringTimeout, func() {
		ag.ring = nil
		ag.ringing = false
		ag.updateCall()
	})
	ag.updateCall()
}

func (ag *AudioGateway) stopRing() {
	ag.ring.Stop()
	ag.ring = nil
	ag.ringing = false
}

func (ag *AudioGateway) callSetup() int {
	if v, ok := ag.indicators["callsetup"]; ok {
		return v
	}
	return ag.indicators["call_setup"]
}

// updateCall derives the call state from the call, callsetup and callheld
// indicators, or from ring notifications when call setup is not reported.
func (ag *AudioGateway) updateCall() {
	active := ag.indicators["call"] != 0 || ag.indicators["callheld"] != 0
	setup := ag.callSetup()
	if ag.ringing && setup == 0 {
		setup = 1
	}
	ag.setCall(callState(active, setup))
}

// callState maps a call indicator and a callsetup value (0 none, 1 incoming,
// 2 outgoing, 3 remote alerted) to a call state.
func callState(active bool, setup int) CallState {
	switch {
	case !active && setup == 0:
		return CallIdle
	case !active && setup == 1:
		return CallWaiting
	case !active:
		return CallConnecting
	case setup == 1:
		return CallEstablishedWaiting
	default:
		return CallEstablished
	}
}
