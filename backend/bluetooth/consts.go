package bluetooth

import idbus "github.com/b0bbywan/go-hfpd/backend/internal/dbus"

const (
	BLUETOOTH_PREFIX  = "org.bluez"
	BLUETOOTH_ADAPTER = BLUETOOTH_PREFIX + ".Adapter1"
	BLUETOOTH_DEVICE  = BLUETOOTH_PREFIX + ".Device1"

	PROFILE_IFACE   = BLUETOOTH_PREFIX + ".Profile1"
	PROFILE_MANAGER = BLUETOOTH_PREFIX + ".ProfileManager1"

	REGISTER_PROFILE   = PROFILE_MANAGER + ".RegisterProfile"
	UNREGISTER_PROFILE = PROFILE_MANAGER + ".UnregisterProfile"

	AGENT_IFACE   = BLUETOOTH_PREFIX + ".Agent1"
	AGENT_MANAGER = BLUETOOTH_PREFIX + ".AgentManager1"

	REGISTER_AGENT   = AGENT_MANAGER + ".RegisterAgent"
	UNREGISTER_AGENT = AGENT_MANAGER + ".UnregisterAgent"

	START_DISCOVERY    = BLUETOOTH_ADAPTER + ".StartDiscovery"
	STOP_DISCOVERY     = BLUETOOTH_ADAPTER + ".StopDiscovery"
	CONNECT_PROFILE    = BLUETOOTH_DEVICE + ".ConnectProfile"
	DISCONNECT_PROFILE = BLUETOOTH_DEVICE + ".DisconnectProfile"

	BLUEZ_ERROR_ALREADY_EXISTS = BLUETOOTH_PREFIX + ".Error.AlreadyExists"
	BLUEZ_ERROR_REJECTED       = BLUETOOTH_PREFIX + ".Error.Rejected"
	BLUEZ_ERROR_NOT_READY      = BLUETOOTH_PREFIX + ".Error.NotReady"

	SIGNAL_PROPERTIES_CHANGED = idbus.DBUS_PROP_IFACE + ".PropertiesChanged"
	SIGNAL_INTERFACES_ADDED   = idbus.DBUS_OBJECT_MNGR + ".InterfacesAdded"
	SIGNAL_INTERFACES_REMOVED = idbus.DBUS_OBJECT_MNGR + ".InterfacesRemoved"
	SIGNAL_NAME_OWNER_CHANGED = idbus.DBUS_INTERFACE + ".NameOwnerChanged"
	DBUS_INTROSPECTABLE_IFACE = idbus.INTROSPECTABLE
	BLUEZ_PATH                = "/org/bluez"
	PROFILE_PATH              = "/net/sf/nohands/hfpd/profile"
	AGENT_PATH                = "/net/sf/nohands/hfpd/agent"
	AGENT_CAPABILITY          = "NoInputNoOutput"
)

// Hands-Free profile identifiers.
const (
	HFP_HF_UUID = "0000111e-0000-1000-8000-00805f9b34fb"
	HFP_AG_UUID = "0000111f-0000-1000-8000-00805f9b34fb"
	HFP_VERSION = 0x0105
)

// Device and adapter properties
const (
	BT_PROP_ADAPTER = "Adapter"
	BT_PROP_ADDRESS = "Address"
	BT_PROP_NAME    = "Name"
	BT_PROP_ALIAS   = "Alias"
	BT_PROP_CLASS   = "Class"
	BT_PROP_RSSI    = "RSSI"
	BT_PROP_POWERED = "Powered"
)
