package dbus

import (
	"context"
	"errors"
	"time"

	"github.com/godbus/dbus/v5"
)

// DefaultTimeout is the timeout used for all D-Bus calls.
var DefaultTimeout = 5 * time.Second

// CallWithTimeout executes a D-Bus call with the default timeout.
func CallWithTimeout(call *dbus.Call) error {
	return CallWithin(call, DefaultTimeout)
}

// CallWithin waits at most timeout for call to complete.
func CallWithin(call *dbus.Call, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	done := make(chan error, 1)
	go func() { done <- call.Err }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return &TimeoutError{}
	}
}

// CallMethodWithin calls a method and abandons the call after timeout.
func CallMethodWithin(obj dbus.BusObject, timeout time.Duration, method string, args ...interface{}) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := obj.CallWithContext(ctx, method, 0, args...).Err
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{}
	}
	return err
}

// GetProperty retrieves a single property from a D-Bus object.
func GetProperty(obj dbus.BusObject, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	call := obj.Call(PROP_GET, 0, iface, prop)
	if err := CallWithTimeout(call); err != nil {
		return dbus.Variant{}, err
	}
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, err
	}
	return v, nil
}

// SetProperty sets a single property on a D-Bus object.
func SetProperty(obj dbus.BusObject, iface, prop string, value interface{}) error {
	return CallWithTimeout(obj.Call(PROP_SET, 0, iface, prop, dbus.MakeVariant(value)))
}

// GetObject returns a D-Bus object for the given service and object path.
func GetObject(conn *dbus.Conn, service, path string) dbus.BusObject {
	return conn.Object(service, dbus.ObjectPath(path))
}

// AddMatchRule subscribes to a D-Bus signal via a match rule.
func AddMatchRule(conn *dbus.Conn, rule string) error {
	return conn.BusObject().Call(BUS_ADD_MATCH, 0, rule).Err
}

// RemoveMatchRule unsubscribes from a D-Bus signal match rule.
func RemoveMatchRule(conn *dbus.Conn, rule string) error {
	return conn.BusObject().Call(BUS_REMOVE_MATCH, 0, rule).Err
}

// ParseInterfacesAdded parses an ObjectManager InterfacesAdded signal body.
func ParseInterfacesAdded(sig *dbus.Signal) (dbus.ObjectPath, map[string]map[string]dbus.Variant, error) {
	if sig == nil {
		return "", nil, &SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 2 {
		return "", nil, &SignalError{Reason: "body too short"}
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, &SignalError{Reason: "failed to parse object path"}
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return "", nil, &SignalError{Reason: "body[1] is not map[string]map[string]Variant"}
	}
	return path, ifaces, nil
}

// ParseInterfacesRemoved parses an ObjectManager InterfacesRemoved signal body.
func ParseInterfacesRemoved(sig *dbus.Signal) (dbus.ObjectPath, []string, error) {
	if sig == nil {
		return "", nil, &SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 2 {
		return "", nil, &SignalError{Reason: "body too short"}
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, &SignalError{Reason: "failed to parse object path"}
	}
	ifaces, ok := sig.Body[1].([]string)
	if !ok {
		return "", nil, &SignalError{Reason: "body[1] is not []string"}
	}
	return path, ifaces, nil
}

// FilterSignal parses a PropertiesChanged D-Bus signal body.
// Returns changed properties map and interface name, or an error if malformed.
func FilterSignal(sig *dbus.Signal) (map[string]dbus.Variant, string, error) {
	if sig == nil {
		return nil, "", &SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 2 {
		return nil, "", &SignalError{Reason: "body too short"}
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return nil, "", &SignalError{Reason: "failed to parse interface name"}
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, "", &SignalError{Reason: "body[1] is not map[string]Variant"}
	}
	return changed, iface, nil
}

// --- Variant extraction helpers ---

// ExtractString extracts a string from a dbus.Variant.
func ExtractString(v dbus.Variant) (string, bool) {
	val, ok := v.Value().(string)
	return val, ok
}

// ExtractBool extracts a bool from a dbus.Variant.
func ExtractBool(v dbus.Variant) (bool, bool) {
	val, ok := v.Value().(bool)
	return val, ok
}

// ExtractUint32 extracts a uint32 from a dbus.Variant.
func ExtractUint32(v dbus.Variant) (uint32, bool) {
	val, ok := v.Value().(uint32)
	return val, ok
}

// --- Map helpers (props map[string]dbus.Variant) ---

// MapString extracts a string from a props map by key.
func MapString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		s, _ := ExtractString(v)
		return s
	}
	return ""
}

// MapUint32 extracts a uint32 from a props map by key.
func MapUint32(props map[string]dbus.Variant, key string) uint32 {
	if v, ok := props[key]; ok {
		u, _ := ExtractUint32(v)
		return u
	}
	return 0
}

// MapObjectPath extracts an object path from a props map by key.
func MapObjectPath(props map[string]dbus.Variant, key string) dbus.ObjectPath {
	if v, ok := props[key]; ok {
		p, _ := v.Value().(dbus.ObjectPath)
		return p
	}
	return ""
}

// MapBool extracts a bool from a props map by key.
func MapBool(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		b, _ := ExtractBool(v)
		return b
	}
	return false
}

// MapBoolOK extracts a bool from a props map by key, with existence check.
func MapBoolOK(props map[string]dbus.Variant, key string) (bool, bool) {
	if v, ok := props[key]; ok {
		return ExtractBool(v)
	}
	return false, false
}
