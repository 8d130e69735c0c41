package hfp

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/b0bbywan/go-hfpd/logger"
)

// Session is a client of the daemon. Claims it holds are released when the
// session terminates.
type Session struct {
	ID     string
	claims map[string]*AudioGateway
}

// NewSession opens a client session and returns its id.
func (h *HandsFree) NewSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	err := h.loop.Call(ctx, func() error {
		h.sessions[id] = &Session{ID: id, claims: map[string]*AudioGateway{}}
		logger.Debug("[hfp] session %s opened", id)
		return nil
	})
	return id, err
}

// CloseSession terminates a session and releases its claims.
func (h *HandsFree) CloseSession(ctx context.Context, id string) error {
	return h.loop.Call(ctx, func() error {
		s, ok := h.sessions[id]
		if !ok {
			return ErrNoSession
		}
		for _, addr := range slices.Sorted(maps.Keys(s.claims)) {
			h.release(s.claims[addr])
		}
		delete(h.sessions, id)
		logger.Debug("[hfp] session %s closed", id)
		return nil
	})
}

// HasSession reports whether id names an open session.
func (h *HandsFree) HasSession(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := h.loop.Call(ctx, func() error {
		_, ok = h.sessions[id]
		return nil
	})
	return ok, err
}

// AddDevice claims the gateway at addr for the session, creating its record
// if needed, and returns its object path. With known set the device is
// remembered across restarts.
func (h *HandsFree) AddDevice(ctx context.Context, session, addr string, known bool) (string, error) {
	addr, err := ParseAddress(addr)
	if err != nil {
		return "", err
	}
	var path string
	err = h.loop.Call(ctx, func() error {
		s, ok := h.sessions[session]
		if !ok {
			return ErrNoSession
		}
		ag := h.gateways[addr]
		if ag != nil && ag.owner != "" && ag.owner != session {
			return ErrAlreadyClaimed
		}
		created := ag == nil
		if created {
			ag = newGateway(h, addr)
		}
		if known {
			if err := ag.setKnown(true); err != nil {
				return err
			}
		}
		if created {
			h.register(ag)
		}
		ag.owner = session
		s.claims[addr] = ag
		path = ag.path
		return nil
	})
	return path, err
}

// RemoveDevice releases the session's claim on addr.
func (h *HandsFree) RemoveDevice(ctx context.Context, session, addr string) error {
	addr, err := ParseAddress(addr)
	if err != nil {
		return err
	}
	return h.loop.Call(ctx, func() error {
		if _, ok := h.sessions[session]; !ok {
			return ErrNoSession
		}
		ag := h.gateways[addr]
		if ag == nil {
			return ErrNoSuchDevice
		}
		if ag.owner != session {
			return ErrNotClaimedByCaller
		}
		h.release(ag)
		return nil
	})
}

// SetKnown changes whether a claimed device is remembered across restarts.
func (h *HandsFree) SetKnown(ctx context.Context, session, addr string, known bool) error {
	addr, err := ParseAddress(addr)
	if err != nil {
		return err
	}
	return h.loop.Call(ctx, func() error {
		ag := h.gateways[addr]
		if ag == nil {
			return ErrNoSuchDevice
		}
		if ag.owner != session {
			return ErrNotClaimedByCaller
		}
		return ag.setKnown(known)
	})
}

// release drops the claim on ag. Unknown devices lose auto-reconnect and are
// disconnected, unless voice persistence keeps their audio connection up
// until it closes.
func (h *HandsFree) release(ag *AudioGateway) {
	if s := h.sessions[ag.owner]; s != nil {
		delete(s.claims, ag.addr)
	}
	ag.owner = ""
	if !ag.known {
		ag.autoReconnect = false
		ag.stopReconnect()
		if h.store.HandsFree().VoicePersist && ag.audio != AudioDisconnected {
			ag.unbindOnAudioClose = true
		} else {
			ag.disconnect(true, nil)
		}
	}
	h.evaluate(ag)
}
