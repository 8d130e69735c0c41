package soundio

import (
	"math"

	"github.com/b0bbywan/go-hfpd/config"
)

const (
	noiseGateRatio  = 2.0
	noiseGateGain   = 0.25
	noiseFloorRise  = 1.02
	minGain         = 0.25
	maxGain         = 8.0
	gainAttack      = 0.5
	gainRelease     = 0.05
	echoSuppression = 0.1
)

// dsp is the capture filter stage: noise gate, automatic gain and echo
// suppression driven by the recent playback energy.
type dsp struct {
	denoise    bool
	target     float64
	gain       float64
	noiseFloor float64
	// playback energy history, one entry per packet
	echo    []float64
	echoPos int
}

func newDSP(cfg *config.DSPConfig, packet int) *dsp {
	if cfg == nil {
		return &dsp{gain: 1}
	}
	d := &dsp{
		denoise: cfg.Denoise,
		target:  float64(cfg.AutoGain),
		gain:    1,
	}
	if cfg.EchoCancelMs > 0 && packet > 0 {
		tail := SamplesFor(msDuration(cfg.EchoCancelMs))
		d.echo = make([]float64, (tail+packet-1)/packet)
	}
	return d
}

func rms(p []int16) float64 {
	if len(p) == 0 {
		return 0
	}
	var sum float64
	for _, s := range p {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(p)))
}

// played records a packet sent to the speaker for echo suppression.
func (d *dsp) played(p []int16) {
	if len(d.echo) == 0 {
		return
	}
	d.echo[d.echoPos] = rms(p)
	d.echoPos = (d.echoPos + 1) % len(d.echo)
}

// process filters a captured packet in place.
func (d *dsp) process(p []int16) {
	level := rms(p)
	scale := 1.0

	if d.denoise {
		if d.noiseFloor == 0 || level < d.noiseFloor {
			d.noiseFloor = level
		} else {
			d.noiseFloor *= noiseFloorRise
		}
		if level < d.noiseFloor*noiseGateRatio {
			scale *= noiseGateGain
		}
	}

	if len(d.echo) > 0 {
		var far float64
		for _, e := range d.echo {
			far = math.Max(far, e)
		}
		if far > 0 && level < far {
			scale *= echoSuppression
		}
	}

	if d.target > 0 && level > 0 {
		want := math.Min(maxGain, math.Max(minGain, d.target/(level*math.Sqrt2)))
		rate := gainRelease
		if want < d.gain {
			rate = gainAttack
		}
		d.gain += (want - d.gain) * rate
		scale *= d.gain
	}

	if scale == 1 {
		return
	}
	for i, s := range p {
		p[i] = clip(float64(s) * scale)
	}
}

func clip(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
