// Package zeroconf publishes the hfpd HTTP API over mDNS.
package zeroconf

import (
	"context"
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

// ZeroConfBackend manages the mDNS registration of the API.
type ZeroConfBackend struct {
	Config *config.ZeroConfig

	server *zeroconf.Server
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New prepares the registration. It returns nil when zeroconf is disabled
// or the API is not bound to a network interface.
func New(ctx context.Context, cfg *config.ZeroConfig) (*ZeroConfBackend, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Listen) == 0 {
		logger.Info("[zeroconf] API bound to loopback only, not publishing")
		return nil, nil
	}

	subCtx, cancel := context.WithCancel(ctx)

	return &ZeroConfBackend{
		Config: cfg,
		ctx:    subCtx,
		cancel: cancel,
	}, nil
}

// Start publishes the service until the context is cancelled or Close is
// called.
func (z *ZeroConfBackend) Start() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		return fmt.Errorf("service already published")
	}

	server, err := zeroconf.Register(
		z.Config.InstanceName,
		z.Config.ServiceType,
		z.Config.Domain,
		z.Config.Port,
		z.Config.TxtRecords,
		z.Config.Listen,
	)
	if err != nil {
		return err
	}

	z.server = server
	logger.Info("[zeroconf] published '%s' (type: %s, port: %d)",
		z.Config.InstanceName, z.Config.ServiceType, z.Config.Port)

	ctx := z.ctx
	go func() {
		<-ctx.Done()
		z.Close()
	}()

	return nil
}

// Close withdraws the service. It is safe to call more than once.
func (z *ZeroConfBackend) Close() {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		z.server.Shutdown()
		z.server = nil
		logger.Debug("[zeroconf] '%s' withdrawn", z.Config.InstanceName)
	}

	if z.cancel != nil {
		z.cancel()
		z.cancel = nil
	}
}
