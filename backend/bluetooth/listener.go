package bluetooth

import (
	"context"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-hfpd/backend/internal/dbus"
	"github.com/b0bbywan/go-hfpd/logger"
)

// SignalFilter selects the signals passed to a SignalHandler.
type SignalFilter func(sig *dbus.Signal) bool

// SignalHandler processes a signal and returns false to stop listening.
type SignalHandler func(sig *dbus.Signal) bool

// BluetoothListener dispatches D-Bus signals matching a set of rules.
type BluetoothListener struct {
	conn       *dbus.Conn
	ctx        context.Context
	cancel     context.CancelFunc
	signals    chan *dbus.Signal
	matchRules []string
	filter     SignalFilter
	handler    SignalHandler
	name       string
	done       chan struct{}
}

// NewBluetoothListener creates a new generic Bluetooth D-Bus signal listener
func NewBluetoothListener(
	conn *dbus.Conn,
	ctx context.Context,
	matchRules []string,
	filter SignalFilter,
	handler SignalHandler,
	name string,
) *BluetoothListener {
	listenerCtx, cancel := context.WithCancel(ctx)

	return &BluetoothListener{
		conn:       conn,
		ctx:        listenerCtx,
		cancel:     cancel,
		signals:    make(chan *dbus.Signal, 10),
		matchRules: matchRules,
		filter:     filter,
		handler:    handler,
		name:       name,
		done:       make(chan struct{}),
	}
}

// Start starts listening to D-Bus signals
func (l *BluetoothListener) Start() error {
	l.conn.Signal(l.signals)

	for i, rule := range l.matchRules {
		if err := idbus.AddMatchRule(l.conn, rule); err != nil {
			for _, added := range l.matchRules[:i] {
				_ = idbus.RemoveMatchRule(l.conn, added)
			}
			l.conn.RemoveSignal(l.signals)
			return err
		}
	}

	go l.listen()

	logger.Info("[bluetooth] %s listener started", l.name)
	return nil
}

// listen continuously listens to D-Bus signals
func (l *BluetoothListener) listen() {
	defer close(l.done)
	defer func() {
		for _, rule := range l.matchRules {
			if err := idbus.RemoveMatchRule(l.conn, rule); err != nil {
				logger.Debug("[bluetooth] failed to remove match rule for %s listener: %v", l.name, err)
			}
		}
		l.conn.RemoveSignal(l.signals)
		logger.Debug("[bluetooth] %s listener stopped", l.name)
	}()

	for {
		select {
		case <-l.ctx.Done():
			return
		case sig, ok := <-l.signals:
			if !ok {
				logger.Debug("[bluetooth] %s signal channel closed", l.name)
				return
			}
			if !l.handleSignal(sig) {
				return
			}
		}
	}
}

// handleSignal processes a D-Bus signal using the filter and handler.
// Returns true to continue listening, false to stop.
func (l *BluetoothListener) handleSignal(sig *dbus.Signal) bool {
	if l.filter != nil && !l.filter(sig) {
		return true
	}
	if l.handler != nil {
		return l.handler(sig)
	}
	return true
}

// Stop stops the listener. It does not wait when called from the handler.
func (l *BluetoothListener) Stop() {
	logger.Debug("[bluetooth] stopping %s listener", l.name)
	l.cancel()
}

// Wait blocks until the listener goroutine returned.
func (l *BluetoothListener) Wait() {
	<-l.done
}

// bluezMatchRules subscribes to BlueZ object and property changes and to
// the lifetime of the BlueZ service.
func bluezMatchRules() []string {
	return []string{
		"type='signal',interface='" + idbus.DBUS_PROP_IFACE + "',member='PropertiesChanged',path_namespace='" + BLUEZ_PATH + "'",
		"type='signal',interface='" + idbus.DBUS_OBJECT_MNGR + "',sender='" + BLUETOOTH_PREFIX + "'",
		"type='signal',interface='" + idbus.DBUS_INTERFACE + "',member='NameOwnerChanged',arg0='" + BLUETOOTH_PREFIX + "'",
	}
}

// bluezFilter passes the signals the radio reacts to.
func bluezFilter(sig *dbus.Signal) bool {
	switch sig.Name {
	case SIGNAL_PROPERTIES_CHANGED, SIGNAL_INTERFACES_ADDED, SIGNAL_INTERFACES_REMOVED, SIGNAL_NAME_OWNER_CHANGED:
		return true
	}
	return false
}
