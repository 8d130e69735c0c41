package bluetooth

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/b0bbywan/go-hfpd/config"
)

func testObjects() managedObjects {
	return managedObjects{
		"/org/bluez/hci1": {
			BLUETOOTH_ADAPTER: {BT_PROP_ADDRESS: dbus.MakeVariant("aa:bb:cc:dd:ee:02")},
		},
		"/org/bluez/hci0": {
			BLUETOOTH_ADAPTER: {BT_PROP_ADDRESS: dbus.MakeVariant("AA:BB:CC:DD:EE:01")},
		},
		"/org/bluez/hci0/dev_01_23_45_67_89_AB": {
			BLUETOOTH_DEVICE: {
				BT_PROP_ADAPTER: dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0")),
				BT_PROP_ADDRESS: dbus.MakeVariant(testAddr),
			},
		},
		"/org/bluez/hci1/dev_01_23_45_67_89_AC": {
			BLUETOOTH_DEVICE: {
				BT_PROP_ADAPTER: dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci1")),
			},
		},
	}
}

func TestFindAdapter(t *testing.T) {
	tests := []struct {
		name     string
		adapter  string
		wantPath dbus.ObjectPath
		wantAddr string
		wantErr  bool
	}{
		{"first", "", "/org/bluez/hci0", "AA:BB:CC:DD:EE:01", false},
		{"by name", "hci1", "/org/bluez/hci1", "AA:BB:CC:DD:EE:02", false},
		{"by address", "AA:BB:CC:DD:EE:02", "/org/bluez/hci1", "AA:BB:CC:DD:EE:02", false},
		{"missing", "hci7", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, addr, err := findAdapter(testObjects(), tt.adapter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("findAdapter(%q) error = %v, wantErr %v", tt.adapter, err, tt.wantErr)
			}
			if path != tt.wantPath || addr != tt.wantAddr {
				t.Errorf("findAdapter(%q) = %q, %q, want %q, %q", tt.adapter, path, addr, tt.wantPath, tt.wantAddr)
			}
		})
	}
}

func TestFindAdapterNone(t *testing.T) {
	_, _, err := findAdapter(managedObjects{}, "")
	var unsupported *bluetoothUnsupportedError
	if !errors.As(err, &unsupported) {
		t.Errorf("findAdapter() error = %v, want bluetoothUnsupportedError", err)
	}
}

func TestIterateAdapterDevices(t *testing.T) {
	var paths []dbus.ObjectPath
	iterateAdapterDevices(testObjects(), "/org/bluez/hci0", func(path dbus.ObjectPath, _ map[string]dbus.Variant) bool {
		paths = append(paths, path)
		return true
	})
	if len(paths) != 1 || paths[0] != "/org/bluez/hci0/dev_01_23_45_67_89_AB" {
		t.Errorf("devices = %v, want [/org/bluez/hci0/dev_01_23_45_67_89_AB]", paths)
	}
}

func TestDevicePath(t *testing.T) {
	got := devicePath("/org/bluez/hci0", "01:23:45:67:89:ab")
	if want := dbus.ObjectPath("/org/bluez/hci0/dev_01_23_45_67_89_AB"); got != want {
		t.Errorf("devicePath() = %q, want %q", got, want)
	}
}

func TestMacFromPath(t *testing.T) {
	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{"/org/bluez/hci0/dev_01_23_45_67_89_AB", testAddr},
		{"/org/bluez/hci0/dev_aa_bb_cc_dd_ee_ff", "AA:BB:CC:DD:EE:FF"},
		{"/org/bluez/hci0", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.path), func(t *testing.T) {
			if got := macFromPath(tt.path); got != tt.want {
				t.Errorf("macFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestDbusErrorName(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"value", dbus.Error{Name: BLUEZ_ERROR_ALREADY_EXISTS}, BLUEZ_ERROR_ALREADY_EXISTS},
		{"pointer", &dbus.Error{Name: BLUEZ_ERROR_REJECTED}, BLUEZ_ERROR_REJECTED},
		{"wrapped", fmt.Errorf("register: %w", dbus.Error{Name: BLUEZ_ERROR_NOT_READY}), BLUEZ_ERROR_NOT_READY},
		{"other", errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dbusErrorName(tt.err); got != tt.want {
				t.Errorf("dbusErrorName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileOptions(t *testing.T) {
	opts := profileOptions("Hands-Free unit", "", config.SecAuth, 0x7f)

	if got := opts["Name"].Value(); got != "Hands-Free unit" {
		t.Errorf("Name = %v, want Hands-Free unit", got)
	}
	if got := opts["Version"].Value(); got != uint16(HFP_VERSION) {
		t.Errorf("Version = %v, want %#x", got, HFP_VERSION)
	}
	if got := opts["Features"].Value(); got != uint16(0x1f) {
		t.Errorf("Features = %v, want 0x1f", got)
	}
	if got := opts["RequireAuthentication"].Value(); got != true {
		t.Errorf("RequireAuthentication = %v, want true", got)
	}
	if _, ok := opts["Service"]; ok {
		t.Error("Service set without a description")
	}

	opts = profileOptions("hfpd", "Hands-free daemon", config.SecNone, 0)
	if got := opts["RequireAuthentication"].Value(); got != false {
		t.Errorf("RequireAuthentication = %v, want false", got)
	}
	if got := opts["Service"].Value(); got != "Hands-free daemon" {
		t.Errorf("Service = %v, want Hands-free daemon", got)
	}
}

func TestBdaddr(t *testing.T) {
	b, err := parseBdaddr(testAddr)
	if err != nil {
		t.Fatalf("parseBdaddr() error = %v", err)
	}
	if want := [6]byte{0xab, 0x89, 0x67, 0x45, 0x23, 0x01}; b != want {
		t.Errorf("parseBdaddr() = %x, want %x", b, want)
	}
	if got := formatBdaddr(b); got != testAddr {
		t.Errorf("formatBdaddr() = %q, want %q", got, testAddr)
	}
	for _, bad := range []string{"", "01:23:45", "zz:23:45:67:89:ab"} {
		if _, err := parseBdaddr(bad); err == nil {
			t.Errorf("parseBdaddr(%q) succeeded, want error", bad)
		}
	}
}

func TestSampleCodec(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	buf := make([]byte, 2*len(samples))
	if n := encodeSamples(buf, samples); n != len(samples) {
		t.Fatalf("encodeSamples() = %d, want %d", n, len(samples))
	}
	if buf[2] != 0x01 || buf[3] != 0x00 {
		t.Errorf("encodeSamples() not little endian: % x", buf[2:4])
	}

	got := make([]int16, len(samples))
	if n := decodeSamples(got, buf); n != len(samples) {
		t.Fatalf("decodeSamples() = %d, want %d", n, len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}

	if n := encodeSamples(make([]byte, 3), samples); n != 1 {
		t.Errorf("encodeSamples() into 3 bytes = %d, want 1", n)
	}
	if n := decodeSamples(make([]int16, 2), buf); n != 2 {
		t.Errorf("decodeSamples() into 2 samples = %d, want 2", n)
	}
}

func TestRemoteClosed(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{unix.ECONNRESET, true},
		{fmt.Errorf("read: %w", unix.ENOTCONN), true},
		{unix.EIO, false},
		{errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := remoteClosed(tt.err); got != tt.want {
				t.Errorf("remoteClosed(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
