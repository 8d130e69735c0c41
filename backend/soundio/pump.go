package soundio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/logger"
)

// pumpHooks receive pump notifications on the pump goroutine.
type pumpHooks struct {
	skew    func([]SkewReport)
	monitor func([]MonitorReport)
	// exit reports the end of the stream: nil when the endpoint finished,
	// the failure otherwise. It is not called after halt.
	exit func(error)
}

// pump moves one packet at a time between the hardware stream and the
// endpoint. It owns hw and the snoop file and closes them when it returns.
type pump struct {
	hw      Stream
	ep      Endpoint
	plan    bufferPlan
	dsp     *dsp
	snoop   *snooper
	monitor *levelMonitor
	hooks   pumpHooks

	mute     atomic.Bool
	watchdog time.Duration

	// jitter buffer for clocked endpoints
	ring    *Ring
	primed  bool
	scratch []int16

	skew        skewDetector
	hwIn, hwOut uint64
	now         func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	halted   atomic.Bool

	// held while the pump touches the endpoint
	epMu sync.Mutex
}

var errHalted = errors.New("pump halted")

func newPump(hw Stream, ep Endpoint, plan bufferPlan, hooks pumpHooks) *pump {
	p := &pump{
		hw:       hw,
		ep:       ep,
		plan:     plan,
		hooks:    hooks,
		watchdog: watchdogTimeout(plan.packet),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if ep.Clocked() {
		p.ring = NewRing(plan.capacity)
		p.scratch = make([]int16, plan.packet)
	}
	return p
}

func (p *pump) start() { go p.run() }

// halt stops the pump and waits for it to exit, at most one watchdog period.
// It reports false when the pump did not exit in time.
func (p *pump) halt() bool {
	p.halted.Store(true)
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return true
	case <-time.After(p.watchdog):
		return false
	}
}

// detach waits until the pump is out of the endpoint. After halt the pump
// never enters it again, so the endpoint may be closed even when the pump
// itself is stuck in the sound card.
func (p *pump) detach() {
	p.epMu.Lock()
	p.epMu.Unlock()
}

func (p *pump) finish(err error) {
	if p.halted.Load() {
		return
	}
	p.hooks.exit(err)
}

func (p *pump) run() {
	defer close(p.done)
	defer func() {
		if err := p.snoop.close(); err != nil {
			logger.Warn("[soundio] failed to close snoop file: %v", err)
		}
		if err := p.hw.Close(); err != nil {
			logger.Warn("[soundio] failed to close sound card: %v", err)
		}
	}()

	wd := time.AfterFunc(p.watchdog, func() {
		logger.Error("[soundio] sound card stalled for %v", p.watchdog)
		p.finish(core.Wrap(core.ErrNameSoundCardFailed, "Sound card stalled", nil))
	})
	defer wd.Stop()

	capture := make([]int16, p.plan.packet)
	play := make([]int16, p.plan.packet)
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		err := p.step(capture, play)
		if !wd.Stop() {
			// the watchdog already fired
			return
		}
		wd.Reset(p.watchdog)

		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			p.finish(err)
			return
		}
	}
}

func (p *pump) step(capture, play []int16) error {
	if err := p.hw.Read(capture); err != nil {
		if !errors.Is(err, ErrXrun) {
			return core.Wrap(core.ErrNameSoundCardFailed, "Sound card capture failed", err)
		}
		p.skew.xrun()
	}
	p.hwIn += uint64(len(capture))

	if p.mute.Load() {
		silence(capture)
	} else if p.dsp != nil {
		p.dsp.process(capture)
	}
	if reports := p.monitor.process(capture); len(reports) > 0 {
		p.hooks.monitor(reports)
	}
	if err := p.exchange(capture, play); err != nil {
		return err
	}
	if err := p.snoop.write(capture, play); err != nil {
		logger.Warn("[soundio] snoop write failed, disabling: %v", err)
		if err := p.snoop.close(); err != nil {
			logger.Warn("[soundio] failed to close snoop file: %v", err)
		}
		p.snoop = nil
	}
	if p.dsp != nil {
		p.dsp.played(play)
	}
	if err := p.hw.Write(play); err != nil {
		if !errors.Is(err, ErrXrun) {
			return core.Wrap(core.ErrNameSoundCardFailed, "Sound card playback failed", err)
		}
		p.skew.xrun()
	}
	p.hwOut += uint64(len(play))
	if p.halted.Load() {
		return errHalted
	}

	epIn, epOut := p.ep.Counters()
	played := p.hwOut - min(p.hwOut, uint64(max(p.hw.Pending(), 0)))
	if reports := p.skew.check(p.now(), skewCounters{
		hwIn:    p.hwIn,
		hwOut:   played,
		epIn:    epIn,
		epOut:   epOut,
		clocked: p.ep.Clocked(),
	}); len(reports) > 0 {
		p.hooks.skew(reports)
	}
	return nil
}

// exchange hands the captured packet to the endpoint and fills play from it.
func (p *pump) exchange(capture, play []int16) error {
	p.epMu.Lock()
	defer p.epMu.Unlock()
	if p.halted.Load() {
		return errHalted
	}
	if err := p.ep.Write(capture); err != nil {
		return err
	}
	return p.fill(play)
}

// fill produces the next playback packet. Unclocked endpoints are read
// directly; clocked endpoints go through the jitter buffer, which waits for
// the minimum fill before playing and trims back to it when the jitter window
// is exceeded.
func (p *pump) fill(play []int16) error {
	if p.ring == nil {
		n, err := p.ep.Read(play)
		if err != nil {
			return err
		}
		silence(play[n:])
		return nil
	}

	for {
		n, err := p.ep.Read(p.scratch)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if p.ring.Write(p.scratch[:n]) > 0 {
			p.skew.xrun()
		}
		if n < len(p.scratch) {
			break
		}
	}

	queued := p.ring.Len()
	if !p.primed {
		if queued < p.plan.fill {
			silence(play)
			return nil
		}
		p.primed = true
	}
	if excess := queued - (p.plan.fill + p.plan.jitter); excess > 0 {
		p.ring.Discard(queued - p.plan.fill)
		p.skew.xrun()
	}

	n := p.ring.Read(play)
	if n < len(play) {
		silence(play[n:])
		p.primed = false
		p.skew.xrun()
	}
	return nil
}
