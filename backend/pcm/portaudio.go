// Package pcm implements the hardware sound drivers of the routing engine.
package pcm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/logger"
)

const minBufferPackets = 4

// PortAudio opens full duplex streams through PortAudio. Options select the
// devices: "in=<name>,out=<name>", "dev=<name>" or a bare device name.
type PortAudio struct {
	mgr *Manager
}

func NewPortAudio() *PortAudio {
	return &PortAudio{mgr: GetManager()}
}

func (d *PortAudio) Name() string        { return "portaudio" }
func (d *PortAudio) Description() string { return "PortAudio sound card" }

func (d *PortAudio) Devices() ([]soundio.DeviceInfo, error) {
	if err := d.mgr.Acquire(); err != nil {
		return nil, err
	}
	defer d.mgr.Release()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	infos := make([]soundio.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		info := soundio.DeviceInfo{
			Name:   dev.Name,
			Input:  dev.MaxInputChannels > 0,
			Output: dev.MaxOutputChannels > 0,
		}
		if dev.HostApi != nil {
			info.Description = dev.HostApi.Name
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *PortAudio) Open(opts string, packet int) (soundio.Stream, error) {
	o, err := parseOptions(opts, "dev", "in", "out")
	if err != nil {
		return nil, err
	}
	return d.open(o.pick("in", "dev"), o.pick("out", "dev"), packet)
}

func (d *PortAudio) open(inName, outName string, packet int) (*stream, error) {
	if err := d.mgr.Acquire(); err != nil {
		return nil, err
	}

	s, err := d.openStream(inName, outName, packet)
	if err != nil {
		d.mgr.Release()
		return nil, err
	}
	logger.Debug("[pcm] opened %q/%q, %d samples per packet, buffer %d", inName, outName, packet, s.buffer)
	return s, nil
}

func (d *PortAudio) openStream(inName, outName string, packet int) (*stream, error) {
	in, err := findDevice(inName, true)
	if err != nil {
		return nil, err
	}
	out, err := findDevice(outName, false)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(in, out)
	params.Input.Channels = soundio.Channels
	params.Output.Channels = soundio.Channels
	params.SampleRate = soundio.SampleRate
	params.FramesPerBuffer = packet

	s := &stream{
		mgr: d.mgr,
		in:  make([]int16, packet),
		out: make([]int16, packet),
	}
	pa, err := portaudio.OpenStream(params, s.in, s.out)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	s.pa = pa
	s.buffer = max(soundio.SamplesFor(pa.Info().OutputLatency), minBufferPackets*packet)
	return s, nil
}

// findDevice resolves a device by exact or partial name, or the default
// device when name is empty.
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var partial *portaudio.DeviceInfo
	for _, dev := range devices {
		if input && dev.MaxInputChannels == 0 || !input && dev.MaxOutputChannels == 0 {
			continue
		}
		if dev.Name == name {
			return dev, nil
		}
		if partial == nil && strings.Contains(dev.Name, name) {
			partial = dev
		}
	}
	if partial != nil {
		return partial, nil
	}
	return nil, fmt.Errorf("no such device %q", name)
}

// stream is a blocking full duplex PortAudio stream exchanging one packet
// per call.
type stream struct {
	mgr    *Manager
	pa     *portaudio.Stream
	in     []int16
	out    []int16
	buffer int
}

func (s *stream) BufferSize() int { return s.buffer }

func (s *stream) Read(p []int16) error {
	err := s.pa.Read()
	copy(p, s.in)
	return xrun(err, portaudio.InputOverflowed)
}

func (s *stream) Write(p []int16) error {
	n := copy(s.out, p)
	clear(s.out[n:])
	return xrun(s.pa.Write(), portaudio.OutputUnderflowed)
}

func (s *stream) Pending() int {
	avail, err := s.pa.AvailableToWrite()
	if err != nil {
		return 0
	}
	return max(s.buffer-avail, 0)
}

func (s *stream) Close() error {
	defer s.mgr.Release()
	if err := s.pa.Stop(); err != nil {
		logger.Debug("[pcm] stop stream: %v", err)
	}
	return s.pa.Close()
}

// xrun maps the PortAudio overflow or underflow status to soundio.ErrXrun.
func xrun(err error, status portaudio.Error) error {
	if err == nil {
		return nil
	}
	var perr portaudio.Error
	if errors.As(err, &perr) && perr == status {
		return fmt.Errorf("%w: %v", soundio.ErrXrun, err)
	}
	return err
}
