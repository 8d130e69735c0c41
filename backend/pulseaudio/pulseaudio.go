package pulseaudio

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/the-jonsey/pulseaudio"

	"github.com/b0bbywan/go-hfpd/cache"
	"github.com/b0bbywan/go-hfpd/logger"
)

const cacheKey = "devices"

// New connects to the sound server at address, or to the user's native
// socket when address is empty.
func New(ctx context.Context, address string) (*PulseAudioBackend, error) {
	if address == "" {
		xdgRuntimeDir, ok := os.LookupEnv("XDG_RUNTIME_DIR")
		if !ok {
			xdgRuntimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
		}
		address = fmt.Sprintf("%s/pulse/native", xdgRuntimeDir)
	}

	c, err := pulseaudio.NewClient(address)
	if err != nil {
		return nil, err
	}
	server, err := c.ServerInfo()
	if err != nil {
		c.Close()
		return nil, err
	}

	backend := &PulseAudioBackend{
		client: c,
		server: server,
		kind:   detectServerKind(server),
		ctx:    ctx,
		cache:  cache.New[string, []Device](0),
	}

	return backend, nil
}

// Start loads the device list and follows source and sink changes.
func (pa *PulseAudioBackend) Start() error {
	if _, err := pa.Devices(); err != nil {
		return err
	}

	pa.listener = NewListener(pa)
	return pa.listener.Start()
}

func (pa *PulseAudioBackend) Kind() AudioServerKind { return pa.kind }

func (pa *PulseAudioBackend) ServerInfo() (*ServerInfo, error) {
	if pa.server == nil {
		return nil, fmt.Errorf("server info unavailable")
	}

	volume, err := pa.client.Volume()
	if err != nil {
		logger.Debug("[pulseaudio] failed to get volume: %v", err)
	}
	return &ServerInfo{
		Kind:          pa.kind,
		Name:          pa.server.PackageName,
		Version:       pa.server.PackageVersion,
		User:          pa.server.User,
		Hostname:      pa.server.Hostname,
		DefaultSink:   pa.server.DefaultSink,
		DefaultSource: pa.server.DefaultSource,
		Volume:        volume,
	}, nil
}

// Devices lists the capture sources and playback sinks of the server.
func (pa *PulseAudioBackend) Devices() ([]Device, error) {
	return pa.cache.GetOrLoad(cacheKey, pa.loadDevices)
}

func (pa *PulseAudioBackend) refresh() {
	pa.cache.Delete(cacheKey)
	if _, err := pa.Devices(); err != nil {
		logger.Warn("[pulseaudio] failed to refresh devices: %v", err)
	}
}

func (pa *PulseAudioBackend) loadDevices() ([]Device, error) {
	sources, err := pa.client.Sources()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	sinks, err := pa.client.Sinks()
	if err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	devices := make([]Device, 0, len(sources)+len(sinks))
	for _, s := range sources {
		if isMonitor(s.Name) {
			continue
		}
		devices = append(devices, Device{
			Name:        s.Name,
			Description: describe(s.Name, s.PropList),
			Source:      true,
			Default:     s.Name == pa.server.DefaultSource,
		})
	}
	for _, s := range sinks {
		devices = append(devices, Device{
			Name:        s.Name,
			Description: describe(s.Name, s.PropList),
			Default:     s.Name == pa.server.DefaultSink,
		})
	}
	sortDevices(devices)

	logger.Debug("[pulseaudio] loaded %d devices", len(devices))
	return devices, nil
}

func (pa *PulseAudioBackend) Close() {
	if pa.listener != nil {
		pa.listener.Stop()
	}
	if pa.client != nil {
		pa.client.Close()
	}
}

func detectServerKind(s *pulseaudio.Server) AudioServerKind {
	if strings.Contains(strings.ToLower(s.PackageName), "pipewire") {
		return ServerPipeWire
	}
	return ServerPulse
}

// isMonitor reports sink monitor sources, which never carry a microphone.
func isMonitor(name string) bool {
	return strings.HasSuffix(name, ".monitor")
}

func describe(name string, props map[string]string) string {
	if d := props["device.description"]; d != "" {
		return d
	}
	return name
}

// sortDevices orders defaults first, then sources before sinks, then by name.
func sortDevices(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Default != b.Default {
			return a.Default
		}
		if a.Source != b.Source {
			return a.Source
		}
		return a.Name < b.Name
	})
}
