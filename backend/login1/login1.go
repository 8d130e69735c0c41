// Package login1 closes the hands-free links before the system sleeps and
// restores them on resume.
package login1

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-hfpd/backend/internal/dbus"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

// New connects to the system bus. It returns nil when the watcher is
// disabled.
func New(ctx context.Context, cfg *config.Login1Config, hooks Hooks) (*SleepWatcher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	w := newWatcher(ctx, conn, hooks)
	logger.Info("[login1] backend initialized")
	return w, nil
}

func newWatcher(ctx context.Context, conn *dbus.Conn, hooks Hooks) *SleepWatcher {
	watchCtx, cancel := context.WithCancel(ctx)
	return &SleepWatcher{
		conn:    conn,
		ctx:     watchCtx,
		cancel:  cancel,
		timeout: 10 * time.Second,
		hooks:   hooks,
		signals: make(chan *dbus.Signal, 4),
		done:    make(chan struct{}),
	}
}

// Start takes the delay lock and follows PrepareForSleep.
func (w *SleepWatcher) Start() error {
	w.conn.Signal(w.signals)
	if err := idbus.AddMatchRule(w.conn, LOGIN1_MATCH_PREPARE_RULE); err != nil {
		w.conn.RemoveSignal(w.signals)
		return err
	}
	w.acquire()
	go w.listen()
	logger.Info("[login1] watching system sleep")
	return nil
}

func (w *SleepWatcher) listen() {
	defer close(w.done)
	defer func() {
		if err := idbus.RemoveMatchRule(w.conn, LOGIN1_MATCH_PREPARE_RULE); err != nil {
			logger.Debug("[login1] failed to remove match rule: %v", err)
		}
		w.conn.RemoveSignal(w.signals)
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case sig, ok := <-w.signals:
			if !ok {
				return
			}
			if sig.Name != LOGIN1_PREPARE_FOR_SLEEP {
				continue
			}
			w.handleSignal(sig)
		}
	}
}

func (w *SleepWatcher) handleSignal(sig *dbus.Signal) {
	sleeping, err := parsePrepareForSleep(sig)
	if err != nil {
		logger.Warn("[login1] ignoring sleep signal: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	if sleeping {
		logger.Info("[login1] system going to sleep")
		if err := w.hooks.Suspend(ctx); err != nil {
			logger.Warn("[login1] suspend hook failed: %v", err)
		}
		w.release()
		return
	}

	logger.Info("[login1] system resumed")
	w.acquire()
	if err := w.hooks.Resume(ctx); err != nil {
		logger.Warn("[login1] resume hook failed: %v", err)
	}
}

func (w *SleepWatcher) acquire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lock != nil {
		return
	}
	lock, err := w.takeLock()
	if err != nil {
		logger.Warn("[login1] could not take sleep delay lock: %v", err)
		return
	}
	w.lock = lock
}

func (w *SleepWatcher) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lock == nil {
		return
	}
	if err := w.lock.Close(); err != nil {
		logger.Debug("[login1] failed to release sleep delay lock: %v", err)
	}
	w.lock = nil
}

// Close stops the watcher and drops the lock.
func (w *SleepWatcher) Close() {
	w.cancel()
	w.release()
	if w.conn != nil {
		select {
		case <-w.done:
		case <-time.After(time.Second):
		}
		if err := w.conn.Close(); err != nil {
			logger.Error("[login1] failed to close D-Bus connection: %v", err)
		}
		w.conn = nil
	}
}
