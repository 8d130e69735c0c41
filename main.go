package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/b0bbywan/go-hfpd/api"
	"github.com/b0bbywan/go-hfpd/backend"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		logger.Fatal("[%s] Failed to load config: %v", config.AppName, err)
	}

	logger.SetLevel(cfg.LogLevel)
	logger.SetPackageLevels(cfg.LogLevels)
	if cfg.Journal && !logger.UseJournal(config.AppName) {
		logger.Warn("[%s] journal not reachable, logging to stderr", config.AppName)
	}
	config.WatchLogLevels()

	// Global context for the entire application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := backend.New(ctx, cfg)
	if err != nil {
		logger.Fatal("[%s] Backend initialization failed: %v", config.AppName, err)
	}

	if err := b.Start(ctx); err != nil {
		logger.Fatal("[%s] Backend start failed: %v", config.AppName, err)
	}

	server := api.NewServer(cfg.Api, b)
	if server != nil {
		b.StartZeroconf()
	}

	shutdownDone := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("[%s] Shutdown signal received, stopping...", config.AppName)
		if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
			logger.Debug("[%s] sd_notify failed: %v", config.AppName, err)
		}

		// Components stop through the loop, before the context ends it
		b.Close()
		cancel()

		close(shutdownDone)
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("[%s] sd_notify failed: %v", config.AppName, err)
	} else if sent {
		logger.Debug("[%s] systemd notified", config.AppName)
	}

	logger.Info("[%s] %s started", config.AppName, config.AppVersion)
	if server != nil {
		if err := server.Run(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("[%s] http server error: %v", config.AppName, err)
		}
	}

	<-shutdownDone
	logger.Info("[%s] stopped", config.AppName)
}
