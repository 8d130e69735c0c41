package login1

import (
	"errors"
	"os"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-hfpd/backend/internal/dbus"
	"github.com/b0bbywan/go-hfpd/config"
)

var errNoBus = errors.New("no system bus connection")

func (w *SleepWatcher) getObj() dbus.BusObject {
	return idbus.GetObject(w.conn, LOGIN1_PREFIX, LOGIN1_PATH)
}

// takeLock asks logind for a delay inhibitor. The lock holds while the
// returned file stays open.
func (w *SleepWatcher) takeLock() (*os.File, error) {
	if w.conn == nil {
		return nil, errNoBus
	}
	call := w.getObj().Call(LOGIN1_METHOD_INHIBIT, 0, inhibitWhat, config.AppName, inhibitWhy, inhibitMode)
	if err := idbus.CallWithin(call, w.timeout); err != nil {
		return nil, err
	}
	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "inhibit"), nil
}

// parsePrepareForSleep returns the "going to sleep" flag of a signal.
func parsePrepareForSleep(sig *dbus.Signal) (bool, error) {
	if sig == nil {
		return false, &idbus.SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 1 {
		return false, &idbus.SignalError{Reason: "body too short"}
	}
	start, ok := sig.Body[0].(bool)
	if !ok {
		return false, &idbus.SignalError{Reason: "body[0] is not bool"}
	}
	return start, nil
}
