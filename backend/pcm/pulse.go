package pcm

import (
	"fmt"
	"os"
	"sync"

	"github.com/b0bbywan/go-hfpd/backend/pulseaudio"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
)

const pulseDevice = "pulse"

// DeviceLister enumerates the sources and sinks of a sound server.
type DeviceLister interface {
	Devices() ([]pulseaudio.Device, error)
}

// Pulse streams through the sound server's PortAudio device. Options
// "source=<name>,sink=<name>" pick the server devices; "dev=<name>" overrides
// the PortAudio device.
type Pulse struct {
	pa     *PortAudio
	server DeviceLister
	// the server device selection is process wide
	envMu sync.Mutex
}

// NewPulse returns the pulse driver; server may be nil when the sound server
// is unreachable, in which case only the default devices can be used.
func NewPulse(pa *PortAudio, server DeviceLister) *Pulse {
	return &Pulse{pa: pa, server: server}
}

func (d *Pulse) Name() string        { return "pulse" }
func (d *Pulse) Description() string { return "PulseAudio or PipeWire sound server" }

func (d *Pulse) Devices() ([]soundio.DeviceInfo, error) {
	if d.server == nil {
		return nil, fmt.Errorf("sound server unavailable")
	}
	devices, err := d.server.Devices()
	if err != nil {
		return nil, err
	}
	return convertDevices(devices), nil
}

func (d *Pulse) Open(opts string, packet int) (soundio.Stream, error) {
	o, err := parseOptions(opts, "dev", "source", "sink")
	if err != nil {
		return nil, err
	}
	dev := o.pick("dev")
	if dev == "" {
		dev = pulseDevice
	}

	d.envMu.Lock()
	defer d.envMu.Unlock()
	restore := setEnv(map[string]string{
		"PULSE_SOURCE": o["source"],
		"PULSE_SINK":   o["sink"],
	})
	defer restore()

	return d.pa.open(dev, dev, packet)
}

func convertDevices(devices []pulseaudio.Device) []soundio.DeviceInfo {
	infos := make([]soundio.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, soundio.DeviceInfo{
			Name:        dev.Name,
			Description: dev.Description,
			Input:       dev.Source,
			Output:      !dev.Source,
		})
	}
	return infos
}

// setEnv sets the non empty values and returns a function restoring the
// previous environment.
func setEnv(vars map[string]string) func() {
	type prev struct {
		value string
		set   bool
	}
	saved := make(map[string]prev, len(vars))
	for k, v := range vars {
		if v == "" {
			continue
		}
		old, ok := os.LookupEnv(k)
		saved[k] = prev{old, ok}
		os.Setenv(k, v)
	}
	return func() {
		for k, p := range saved {
			if p.set {
				os.Setenv(k, p.value)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}
