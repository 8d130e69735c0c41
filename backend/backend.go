// Package backend assembles the daemon: the event loop, the sound engine,
// the Bluetooth radio and the hands-free registry on top of them.
package backend

import (
	"context"
	"fmt"

	"github.com/b0bbywan/go-hfpd/backend/bluetooth"
	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/backend/login1"
	"github.com/b0bbywan/go-hfpd/backend/pcm"
	"github.com/b0bbywan/go-hfpd/backend/pulseaudio"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/backend/zeroconf"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

type Backend struct {
	Loop      *core.Loop
	SoundIo   *soundio.SoundIo
	HandsFree *hfp.HandsFree
	Pulse     *pulseaudio.PulseAudioBackend
	Zeroconf  *zeroconf.ZeroConfBackend
	Sleep     *login1.SleepWatcher
	Events    *Broadcaster

	adapter   string
	autostart bool
}

// New builds every component. Nothing touches the Bluetooth stack before
// Start.
func New(ctx context.Context, cfg *config.Config) (*Backend, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("missing configuration")
	}
	btCfg := cfg.Bluetooth
	if btCfg == nil {
		btCfg = &config.BluetoothConfig{Enabled: true}
	}

	b := &Backend{
		Loop:      core.NewLoop(ctx),
		adapter:   btCfg.Adapter,
		autostart: btCfg.Enabled,
	}

	if cfg.Pulseaudio != nil && cfg.Pulseaudio.Enabled {
		p, err := pulseaudio.New(ctx, pulseAddress(cfg.Pulseaudio))
		if err != nil {
			logger.Warn("[backend] sound server not available: %v", err)
		} else {
			b.Pulse = p
		}
	}

	pa := pcm.NewPortAudio()
	drivers := []soundio.Driver{pa}
	if b.Pulse != nil {
		drivers = append(drivers, pcm.NewPulse(pa, b.Pulse))
	}
	b.SoundIo = soundio.New(b.Loop, cfg.Store, drivers...)

	b.HandsFree = hfp.New(ctx, b.Loop, cfg.Store, bluetooth.New(btCfg), b.SoundIo, hfp.Config{
		Adapter:         btCfg.Adapter,
		CommandTimeout:  btCfg.CommandTimeout,
		InquiryDuration: btCfg.InquiryDuration,
	})

	sleep, err := login1.New(ctx, cfg.Login1, &sleepHooks{h: b.HandsFree})
	if err != nil {
		logger.Warn("[backend] suspend watcher not available: %v", err)
	} else {
		b.Sleep = sleep
	}

	z, err := zeroconf.New(ctx, cfg.Zeroconf)
	if err != nil {
		return nil, err
	}
	b.Zeroconf = z

	b.Events = NewBroadcaster(ctx, b.Loop.Events())
	return b, nil
}

func pulseAddress(cfg *config.PulseAudioConfig) string {
	if cfg.XDGRuntimeDir == "" {
		return ""
	}
	return cfg.XDGRuntimeDir + "/pulse/native"
}

// Start follows the sound server and brings the radio up when Bluetooth is
// enabled. A radio that fails to start is retried by the registry's restart
// policy, so it does not fail the daemon.
func (b *Backend) Start(ctx context.Context) error {
	if b.Pulse != nil {
		if err := b.Pulse.Start(); err != nil {
			logger.Warn("[backend] could not follow sound server devices: %v", err)
		}
	}

	if b.Sleep != nil {
		if err := b.Sleep.Start(); err != nil {
			logger.Warn("[backend] could not watch system sleep: %v", err)
		}
	}

	if b.autostart {
		if err := b.HandsFree.Start(ctx); err != nil {
			logger.Error("[backend] Bluetooth start failed: %v", err)
		}
	} else {
		logger.Info("[backend] Bluetooth disabled at startup")
	}

	return nil
}

// StartZeroconf publishes the API once it is served.
func (b *Backend) StartZeroconf() {
	if b.Zeroconf == nil {
		return
	}
	if err := b.Zeroconf.Start(); err != nil {
		logger.Warn("[backend] zeroconf publish failed: %v", err)
	}
}

// Close stops every component. The loop must still be running.
func (b *Backend) Close() {
	if b.Zeroconf != nil {
		b.Zeroconf.Close()
	}
	if b.Sleep != nil {
		b.Sleep.Close()
	}
	if b.HandsFree != nil {
		b.HandsFree.Close()
	}
	if b.SoundIo != nil {
		b.SoundIo.Close()
	}
	if b.Pulse != nil {
		b.Pulse.Close()
	}
}
