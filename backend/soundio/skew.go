package soundio

import (
	"math"
	"time"
)

const (
	skewWindow    = 5 * time.Second
	skewThreshold = 0.5 // percent
)

// rateMeter compares the progress of two nominally equal sample clocks.
type rateMeter struct {
	start  time.Time
	a0, b0 uint64
}

// sample returns the signed percentage by which clock a runs faster than
// clock b once a full window has elapsed. The window restarts after every
// evaluation.
func (m *rateMeter) sample(now time.Time, a, b uint64) (float64, bool) {
	if m.start.IsZero() {
		m.start, m.a0, m.b0 = now, a, b
		return 0, false
	}
	if now.Sub(m.start) < skewWindow {
		return 0, false
	}
	da, db := float64(a-m.a0), float64(b-m.b0)
	m.start, m.a0, m.b0 = now, a, b
	if da == 0 || db == 0 {
		return 0, false
	}

	pct := (da - db) / math.Max(da, db) * 100
	if math.Abs(pct) < skewThreshold {
		return 0, false
	}
	return pct, true
}

// skewDetector tracks the four skew classes for one stream.
type skewDetector struct {
	xruns      int
	xrunStart  time.Time
	hardware   rateMeter
	endpoint   rateMeter
	interfaces rateMeter
}

type skewCounters struct {
	hwIn, hwOut uint64
	epIn, epOut uint64
	clocked     bool
}

func (d *skewDetector) xrun() { d.xruns++ }

// check evaluates the detectors and returns the reports due at now.
func (d *skewDetector) check(now time.Time, c skewCounters) []SkewReport {
	var reports []SkewReport

	if d.xrunStart.IsZero() {
		d.xrunStart = now
	} else if now.Sub(d.xrunStart) >= time.Second {
		if d.xruns > 0 {
			reports = append(reports, SkewReport{Type: SkewXrun, Value: float64(d.xruns)})
		}
		d.xruns = 0
		d.xrunStart = now
	}

	if pct, ok := d.hardware.sample(now, c.hwIn, c.hwOut); ok {
		reports = append(reports, SkewReport{Type: SkewHardware, Value: pct})
	}
	if !c.clocked {
		return reports
	}
	if pct, ok := d.endpoint.sample(now, c.epIn, c.epOut); ok {
		reports = append(reports, SkewReport{Type: SkewEndpoint, Value: pct})
	}
	if pct, ok := d.interfaces.sample(now, c.epIn, c.hwIn); ok {
		reports = append(reports, SkewReport{Type: SkewInterface, Value: pct})
	}
	return reports
}
