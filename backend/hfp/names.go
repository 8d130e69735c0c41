package hfp

import (
	"context"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/cache"
	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

type nameResult struct {
	name string
	err  error
}

// nameResolver serializes remote name requests and remembers the answers.
type nameResolver struct {
	h        *HandsFree
	cache    *cache.Cache[string, string]
	inflight map[string]bool
	waiters  map[string][]chan nameResult
}

func newNameResolver(h *HandsFree) *nameResolver {
	return &nameResolver{
		h:        h,
		cache:    cache.New[string, string](nameCacheTTL),
		inflight: map[string]bool{},
		waiters:  map[string][]chan nameResult{},
	}
}

func (r *nameResolver) cached(addr string) (string, bool) {
	return r.cache.Get(addr)
}

// request asks the radio for the name of addr unless a request is pending.
func (r *nameResolver) request(addr string) {
	if r.inflight[addr] {
		return
	}
	r.inflight[addr] = true
	loop := r.h.loop
	r.h.radio.ReadName(addr, func(name string, err error) {
		loop.Post(func() { r.done(addr, name, err) })
	})
}

func (r *nameResolver) done(addr, name string, err error) {
	if !r.inflight[addr] {
		return
	}
	delete(r.inflight, addr)
	if err != nil {
		logger.Debug("[hfp] name request for %s failed: %v", addr, err)
		r.resolve(addr, nameResult{err: core.Wrap(core.ErrNameFailed, "Name resolution failure", err)})
		return
	}
	r.cache.Set(addr, name)
	if ag := r.h.gateways[addr]; ag != nil {
		ag.name = name
		r.h.loop.Emit(events.TypeGatewayName, NameEvent{GatewayRef: ag.ref(), Name: name})
	}
	r.resolve(addr, nameResult{name: name})
}

func (r *nameResolver) resolve(addr string, res nameResult) {
	for _, ch := range r.waiters[addr] {
		ch <- res
	}
	delete(r.waiters, addr)
}

// fail resolves every waiter with err.
func (r *nameResolver) fail(err error) {
	for addr := range r.waiters {
		r.resolve(addr, nameResult{err: err})
	}
	clear(r.inflight)
}

// GetName returns the name of the device at addr, asking the radio when it
// is not already known.
func (h *HandsFree) GetName(ctx context.Context, addr string) (string, error) {
	addr, err := ParseAddress(addr)
	if err != nil {
		return "", err
	}
	var (
		name string
		wait chan nameResult
	)
	err = h.loop.Call(ctx, func() error {
		if ag := h.gateways[addr]; ag != nil && ag.name != "" {
			name = ag.name
			return nil
		}
		if n, ok := h.names.cached(addr); ok {
			name = n
			return nil
		}
		if !h.started {
			return ErrNotStarted
		}
		wait = make(chan nameResult, 1)
		h.names.waiters[addr] = append(h.names.waiters[addr], wait)
		h.names.request(addr)
		return nil
	})
	if err != nil || wait == nil {
		return name, err
	}
	select {
	case res := <-wait:
		return res.name, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
