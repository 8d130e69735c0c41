package bluetooth

import (
	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

// hfProfile implements org.bluez.Profile1 for the hands-free role. BlueZ
// hands it the RFCOMM socket of every service level connection.
type hfProfile struct {
	r *Radio
}

func (p *hfProfile) Release() *dbus.Error {
	logger.Debug("[bluetooth] profile Release() called")
	return nil
}

func (p *hfProfile) Cancel() *dbus.Error { return nil }

func (p *hfProfile) RequestDisconnection(dev dbus.ObjectPath) *dbus.Error {
	logger.Debug("[bluetooth] profile RequestDisconnection() called for device %v", dev)
	p.r.dropConnection(macFromPath(dev))
	return nil
}

func (p *hfProfile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	addr := macFromPath(dev)
	if err := p.r.newConnection(addr, int(fd)); err != nil {
		logger.Info("[bluetooth] connection from %s refused: %v", addr, err)
		return &dbus.Error{Name: BLUEZ_ERROR_REJECTED, Body: []interface{}{err.Error()}}
	}
	return nil
}

// profileOptions builds the RegisterProfile options.
func profileOptions(name, desc string, secMode config.SecMode, features uint32) map[string]dbus.Variant {
	opts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(name),
		"Version":               dbus.MakeVariant(uint16(HFP_VERSION)),
		"Features":              dbus.MakeVariant(uint16(features & 0x1f)),
		"RequireAuthentication": dbus.MakeVariant(secMode != config.SecNone),
		"RequireAuthorization":  dbus.MakeVariant(false),
	}
	if desc != "" {
		opts["Service"] = dbus.MakeVariant(desc)
	}
	return opts
}

// registerProfile exports the hands-free profile and registers it with
// BlueZ. Another registered hands-free implementation is a service conflict.
func (r *Radio) registerProfile(conn *dbus.Conn, rc hfp.RadioConfig) (func(), error) {
	if err := export(conn, &hfProfile{r: r}, PROFILE_PATH, PROFILE_IFACE); err != nil {
		return nil, core.Wrap(core.ErrNameFailed, "Could not export hands-free profile", err)
	}
	opts := profileOptions(rc.ServiceName, rc.ServiceDesc, rc.SecMode, brsfCapabilities(rc.Capabilities))
	manager := r.getObj(conn, BLUEZ_PATH)
	if err := r.callMethod(manager, REGISTER_PROFILE, dbus.ObjectPath(PROFILE_PATH), HFP_HF_UUID, opts); err != nil {
		unexport(conn, PROFILE_PATH, PROFILE_IFACE)
		if dbusErrorName(err) == BLUEZ_ERROR_ALREADY_EXISTS {
			return nil, core.Wrap(core.ErrNameServiceConflict, "Hands-free profile already registered by another process", err)
		}
		return nil, core.Wrap(core.ErrNameFailed, "Could not register hands-free profile", err)
	}
	logger.Debug("[bluetooth] hands-free profile registered")
	return func() {
		if err := r.callMethod(manager, UNREGISTER_PROFILE, dbus.ObjectPath(PROFILE_PATH)); err != nil {
			logger.Warn("[bluetooth] failed to unregister profile: %v", err)
		}
		unexport(conn, PROFILE_PATH, PROFILE_IFACE)
	}, nil
}
