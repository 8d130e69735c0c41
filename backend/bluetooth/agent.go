package bluetooth

import (
	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/go-hfpd/logger"
)

// bluezAgent accepts pairing and service authorization without user
// interaction, as a headless hands-free unit has no display or keyboard.
type bluezAgent struct{}

func (a *bluezAgent) Release() *dbus.Error {
	logger.Debug("[bluetooth] agent Release() called")
	return nil
}

func (a *bluezAgent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	logger.Debug("[bluetooth] agent RequestAuthorization() called for device %v", device)
	return nil
}

func (a *bluezAgent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	logger.Debug("[bluetooth] agent AuthorizeService() called for device %v, uuid %s", device, uuid)
	return nil
}

func (a *bluezAgent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	logger.Debug("[bluetooth] agent RequestConfirmation() called for device %v, passkey %06d", device, passkey)
	return nil
}

func (a *bluezAgent) Cancel() *dbus.Error {
	logger.Debug("[bluetooth] agent Cancel() called")
	return nil
}

// registerAgent exports the agent and registers it with BlueZ. An agent
// registered by a previous run is reused. The returned function undoes the
// registration.
func (r *Radio) registerAgent(conn *dbus.Conn) (func(), error) {
	if err := export(conn, &bluezAgent{}, AGENT_PATH, AGENT_IFACE); err != nil {
		return nil, err
	}
	manager := r.getObj(conn, BLUEZ_PATH)
	if err := r.callMethod(manager, REGISTER_AGENT, dbus.ObjectPath(AGENT_PATH), AGENT_CAPABILITY); err != nil {
		if dbusErrorName(err) != BLUEZ_ERROR_ALREADY_EXISTS {
			unexport(conn, AGENT_PATH, AGENT_IFACE)
			return nil, err
		}
	}
	logger.Debug("[bluetooth] agent registered")
	return func() {
		if err := r.callMethod(manager, UNREGISTER_AGENT, dbus.ObjectPath(AGENT_PATH)); err != nil {
			logger.Warn("[bluetooth] failed to unregister agent %s: %v", AGENT_PATH, err)
		}
		unexport(conn, AGENT_PATH, AGENT_IFACE)
	}, nil
}
