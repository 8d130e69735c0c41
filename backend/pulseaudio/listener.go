package pulseaudio

import (
	"context"

	"github.com/the-jonsey/pulseaudio"

	"github.com/b0bbywan/go-hfpd/logger"
)

// Listener refreshes the device list on source and sink changes.
type Listener struct {
	backend *PulseAudioBackend
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewListener(backend *PulseAudioBackend) *Listener {
	ctx, cancel := context.WithCancel(backend.ctx)
	return &Listener{
		backend: backend,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (l *Listener) Start() error {
	updates, err := l.backend.client.UpdatesByType(pulseaudio.SUBSCRIPTION_MASK_SINK | pulseaudio.SUBSCRIPTION_MASK_SOURCE)
	if err != nil {
		return err
	}

	go l.listen(updates)

	logger.Info("[pulseaudio] listener started")
	return nil
}

func (l *Listener) listen(updates <-chan struct{}) {
	for {
		select {
		case <-l.ctx.Done():
			return

		case _, ok := <-updates:
			if !ok {
				return
			}
			logger.Debug("[pulseaudio] sources or sinks changed, refreshing")
			l.backend.refresh()
		}
	}
}

func (l *Listener) Stop() {
	logger.Debug("[pulseaudio] stopping listener")
	l.cancel()
}
