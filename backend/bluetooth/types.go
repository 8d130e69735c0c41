package bluetooth

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
)

// Radio is the BlueZ implementation of hfp.Radio. Service level connections
// arrive through an exported org.bluez.Profile1 object, audio runs over
// kernel SCO sockets.
type Radio struct {
	timeout    time.Duration
	cmdTimeout time.Duration

	mu          sync.Mutex
	conn        *dbus.Conn
	handler     hfp.RadioHandler
	rc          hfp.RadioConfig
	adapter     dbus.ObjectPath
	adapterAddr string
	sessions    map[string]*session
	connects    map[string]*pendingConnect
	classes     map[string]uint32
	discovering bool
	cleanup     []func()
}

type pendingConnect struct {
	done func(hfp.SLCInfo, error)
}

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

type bluetoothUnsupportedError struct {
	adapter string
}

func (e *bluetoothUnsupportedError) Error() string {
	if e.adapter != "" {
		return "bluetooth adapter " + e.adapter + " not found"
	}
	return "bluetooth not supported"
}
