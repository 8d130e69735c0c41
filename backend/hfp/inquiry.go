package hfp

import (
	"context"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

// Inquiry scans for nearby devices. Results are reported as events; devices
// get a registry record only once claimed.
type Inquiry struct {
	h        *HandsFree
	scanning bool
	seen     map[string]struct{}
	timer    *core.Timer
}

// StartInquiry begins a scan that ends by itself after the inquiry duration.
func (h *HandsFree) StartInquiry(ctx context.Context) error {
	return h.loop.Call(ctx, h.inquiry.start)
}

// StopInquiry ends a running scan early.
func (h *HandsFree) StopInquiry(ctx context.Context) error {
	return h.loop.Call(ctx, func() error {
		h.inquiry.stop()
		return nil
	})
}

func (i *Inquiry) start() error {
	if i.scanning {
		return ErrBusy
	}
	if !i.h.started {
		return ErrNotStarted
	}
	if err := i.h.radio.StartInquiry(); err != nil {
		return err
	}
	i.scanning = true
	i.seen = map[string]struct{}{}
	i.timer = i.h.loop.AfterFunc(i.h.cfg.InquiryDuration, i.stop)
	logger.Debug("[inquiry] started")
	i.h.loop.Emit(events.TypeInquiryState, InquiryStateEvent{Scanning: true})
	return nil
}

func (i *Inquiry) stop() {
	if !i.scanning {
		return
	}
	if err := i.h.radio.StopInquiry(); err != nil {
		logger.Warn("[inquiry] could not stop: %v", err)
	}
	i.finish()
}

// finish returns to idle without touching the radio, used when the radio
// ended the scan or went away.
func (i *Inquiry) finish() {
	if !i.scanning {
		return
	}
	i.timer.Stop()
	i.timer = nil
	i.scanning = false
	i.seen = nil
	logger.Debug("[inquiry] stopped")
	i.h.loop.Emit(events.TypeInquiryState, InquiryStateEvent{Scanning: false})
}

func (i *Inquiry) discovered(addr string, class uint32) {
	if !i.scanning {
		return
	}
	if _, ok := i.seen[addr]; ok {
		return
	}
	i.seen[addr] = struct{}{}
	logger.Debug("[inquiry] found %s class %06x", addr, class)
	i.h.loop.Emit(events.TypeInquiryResult, InquiryResult{Address: addr, Class: class})
}
