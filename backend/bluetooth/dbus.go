package bluetooth

import (
	"errors"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	idbus "github.com/b0bbywan/go-hfpd/backend/internal/dbus"
	"github.com/b0bbywan/go-hfpd/logger"
)

// callMethod calls a method on an object with the radio timeout
func (r *Radio) callMethod(obj dbus.BusObject, method string, args ...interface{}) error {
	return idbus.CallMethodWithin(obj, r.timeout, method, args...)
}

func (r *Radio) getObj(conn *dbus.Conn, path dbus.ObjectPath) dbus.BusObject {
	return idbus.GetObject(conn, BLUETOOTH_PREFIX, string(path))
}

func getManagedObjects(conn *dbus.Conn) (managedObjects, error) {
	objManager := idbus.GetObject(conn, BLUETOOTH_PREFIX, "/")
	var objs managedObjects
	call := objManager.Call(idbus.MANAGED_OBJECTS, 0)
	if err := idbus.CallWithTimeout(call); err != nil {
		logger.Warn("[bluetooth] failed to query BlueZ managed objects: %v", err)
		return nil, err
	}
	if err := call.Store(&objs); err != nil {
		return nil, err
	}
	return objs, nil
}

// findAdapter selects the adapter matching name, which may be an interface
// name such as hci0, an adapter address, or empty for the first adapter.
func findAdapter(objs managedObjects, name string) (dbus.ObjectPath, string, error) {
	paths := make([]string, 0, len(objs))
	for path, ifaces := range objs {
		if _, ok := ifaces[BLUETOOTH_ADAPTER]; ok {
			paths = append(paths, string(path))
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		path := dbus.ObjectPath(p)
		addr := idbus.MapString(objs[path][BLUETOOTH_ADAPTER], BT_PROP_ADDRESS)
		if name == "" || p[strings.LastIndexByte(p, '/')+1:] == name || strings.EqualFold(addr, name) {
			return path, strings.ToUpper(addr), nil
		}
	}
	logger.Info("[bluetooth] no adapter found, Bluetooth not supported")
	return "", "", &bluetoothUnsupportedError{adapter: name}
}

// iterateAdapterDevices iterates over all devices belonging to adapter and
// calls fn for each device until it returns false
func iterateAdapterDevices(objs managedObjects, adapter dbus.ObjectPath, fn func(path dbus.ObjectPath, props map[string]dbus.Variant) bool) {
	for path, ifaces := range objs {
		dev, ok := ifaces[BLUETOOTH_DEVICE]
		if !ok {
			continue
		}
		if idbus.MapObjectPath(dev, BT_PROP_ADAPTER) != adapter {
			continue
		}
		if !fn(path, dev) {
			break
		}
	}
}

// devicePath returns the BlueZ object path of addr below adapter.
func devicePath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	return adapter + "/dev_" + dbus.ObjectPath(strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

// macFromPath returns the device address of a BlueZ device object path.
func macFromPath(path dbus.ObjectPath) string {
	p := string(path)
	i := strings.LastIndex(p, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(p[i+len("/dev_"):], "_", ":"))
}

// dbusErrorName returns the D-Bus error name carried by err, if any.
func dbusErrorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name
	}
	return ""
}

// export publishes obj on path along with introspection data so BlueZ can
// discover its methods.
func export(conn *dbus.Conn, obj interface{}, path dbus.ObjectPath, iface string) error {
	if err := conn.Export(obj, path, iface); err != nil {
		return err
	}
	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    iface,
				Methods: introspect.Methods(obj),
			},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), path, DBUS_INTROSPECTABLE_IFACE)
}

func unexport(conn *dbus.Conn, path dbus.ObjectPath, iface string) {
	_ = conn.Export(nil, path, iface)
	_ = conn.Export(nil, path, DBUS_INTROSPECTABLE_IFACE)
}
