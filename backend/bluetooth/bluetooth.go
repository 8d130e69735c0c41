package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/hfp"
	idbus "github.com/b0bbywan/go-hfpd/backend/internal/dbus"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

// connectTimeout bounds ConnectProfile, which includes paging the device.
const connectTimeout = 30 * time.Second

var (
	errStopped     = errors.New("radio stopped")
	errDuplicate   = errors.New("service level connection already open")
	errNotAccepted = errors.New("connection not accepted")
)

// New creates the BlueZ radio. Nothing touches the system bus before Start.
func New(cfg *config.BluetoothConfig) *Radio {
	r := &Radio{
		timeout:    idbus.DefaultTimeout,
		cmdTimeout: hfp.DefaultCommandTimeout,
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			r.timeout = cfg.Timeout
		}
		if cfg.CommandTimeout > 0 {
			r.cmdTimeout = cfg.CommandTimeout
		}
	}
	return r
}

// Start connects to BlueZ, binds the SCO socket and registers the
// hands-free profile.
func (r *Radio) Start(ctx context.Context, rc hfp.RadioConfig, h hfp.RadioHandler) error {
	r.mu.Lock()
	running := r.handler != nil
	r.mu.Unlock()
	if running {
		return nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return core.Wrap(core.ErrNameNoKernelSupport, "Could not connect to the system bus", err)
	}
	cleanup := []func(){func() { _ = conn.Close() }}
	fail := func(err error) error {
		runCleanup(cleanup)
		return err
	}

	objs, err := getManagedObjects(conn)
	if err != nil {
		return fail(core.Wrap(core.ErrNameNoKernelSupport, "BlueZ is not available", err))
	}
	adapter, addr, err := findAdapter(objs, rc.Adapter)
	if err != nil {
		return fail(core.Wrap(core.ErrNameNoKernelSupport, "No Bluetooth adapter found", err))
	}
	if !idbus.MapBool(objs[adapter][BLUETOOTH_ADAPTER], BT_PROP_POWERED) {
		if err := idbus.SetProperty(r.getObj(conn, adapter), BLUETOOTH_ADAPTER, BT_PROP_POWERED, true); err != nil {
			logger.Warn("[bluetooth] failed to power on %s: %v", adapter, err)
		}
	}
	classes := map[string]uint32{}
	iterateAdapterDevices(objs, adapter, func(path dbus.ObjectPath, props map[string]dbus.Variant) bool {
		classes[deviceAddress(path, props)] = idbus.MapUint32(props, BT_PROP_CLASS)
		return true
	})

	sco, err := listenSCO(addr, r.incomingAudio)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, func() { _ = sco.Close() })

	undo, err := r.registerProfile(conn, rc)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, undo)

	if rc.SecMode != config.SecNone {
		if undo, err := r.registerAgent(conn); err != nil {
			logger.Warn("[bluetooth] failed to register agent: %v", err)
		} else {
			cleanup = append(cleanup, undo)
		}
	}

	listener := NewBluetoothListener(conn, ctx, bluezMatchRules(), bluezFilter, r.onSignal, "bluez")
	if err := listener.Start(); err != nil {
		return fail(core.Wrap(core.ErrNameFailed, "Could not subscribe to BlueZ signals", err))
	}
	cleanup = append(cleanup, listener.Stop)

	r.mu.Lock()
	r.conn = conn
	r.handler = h
	r.rc = rc
	r.adapter = adapter
	r.adapterAddr = addr
	r.sessions = map[string]*session{}
	r.connects = map[string]*pendingConnect{}
	r.classes = classes
	r.discovering = false
	r.cleanup = cleanup
	r.mu.Unlock()

	logger.Info("[bluetooth] started on %s (%s)", adapter, addr)
	return nil
}

// Stop closes every connection and unregisters from BlueZ.
func (r *Radio) Stop() {
	if r.shutdown() {
		logger.Info("[bluetooth] stopped")
	}
}

// shutdown releases everything Start acquired. It reports false when the
// radio was not running.
func (r *Radio) shutdown() bool {
	r.mu.Lock()
	if r.handler == nil {
		r.mu.Unlock()
		return false
	}
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	connects := make([]*pendingConnect, 0, len(r.connects))
	for _, pc := range r.connects {
		connects = append(connects, pc)
	}
	cleanup := r.cleanup
	r.conn = nil
	r.handler = nil
	r.sessions = nil
	r.connects = nil
	r.classes = nil
	r.cleanup = nil
	r.discovering = false
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	for _, pc := range connects {
		pc.done(hfp.SLCInfo{}, hfp.ErrShutDown)
	}
	runCleanup(cleanup)
	return true
}

// lost tears the radio down after BlueZ or the adapter went away.
func (r *Radio) lost(err error) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	logger.Warn("[bluetooth] %v", err)
	if r.shutdown() {
		h.Stopped(err)
	}
}

func runCleanup(cleanup []func()) {
	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
}

// StartInquiry starts device discovery on the adapter. Discovery failures
// end the inquiry through InquiryDone.
func (r *Radio) StartInquiry() error {
	r.mu.Lock()
	if r.handler == nil {
		r.mu.Unlock()
		return hfp.ErrNotStarted
	}
	if r.discovering {
		r.mu.Unlock()
		return nil
	}
	r.discovering = true
	obj := r.getObj(r.conn, r.adapter)
	r.mu.Unlock()

	go func() {
		if err := r.callMethod(obj, START_DISCOVERY); err != nil {
			logger.Warn("[bluetooth] could not start discovery: %v", err)
			r.inquiryEnded()
		}
	}()
	return nil
}

func (r *Radio) StopInquiry() error {
	r.mu.Lock()
	if !r.discovering {
		r.mu.Unlock()
		return nil
	}
	r.discovering = false
	obj := r.getObj(r.conn, r.adapter)
	r.mu.Unlock()

	go func() {
		if err := r.callMethod(obj, STOP_DISCOVERY); err != nil {
			logger.Debug("[bluetooth] could not stop discovery: %v", err)
		}
	}()
	return nil
}

func (r *Radio) inquiryEnded() {
	r.mu.Lock()
	was := r.discovering
	r.discovering = false
	h := r.handler
	r.mu.Unlock()
	if was && h != nil {
		h.InquiryDone()
	}
}

// Connect asks BlueZ to connect the hands-free profile of addr. done runs
// once the service level connection is set up or failed.
func (r *Radio) Connect(addr string, done func(hfp.SLCInfo, error)) {
	pc := &pendingConnect{done: done}
	r.mu.Lock()
	if r.handler == nil {
		r.mu.Unlock()
		done(hfp.SLCInfo{}, hfp.ErrNotStarted)
		return
	}
	old := r.connects[addr]
	if s := r.sessions[addr]; s != nil {
		if s.isReady() {
			r.mu.Unlock()
			done(s.slcInfo(), nil)
			return
		}
		// setup in progress, resolved when it completes
		r.connects[addr] = pc
		r.mu.Unlock()
		if old != nil {
			old.done(hfp.SLCInfo{}, hfp.ErrDisconnected)
		}
		return
	}
	r.connects[addr] = pc
	obj := r.getObj(r.conn, devicePath(r.adapter, addr))
	r.mu.Unlock()
	if old != nil {
		old.done(hfp.SLCInfo{}, hfp.ErrDisconnected)
	}

	logger.Debug("[bluetooth] connecting %s", addr)
	go func() {
		err := idbus.CallMethodWithin(obj, connectTimeout, CONNECT_PROFILE, HFP_AG_UUID)
		if err != nil {
			logger.Info("[bluetooth] connect %s: %v", addr, err)
			r.connectFailed(addr, pc, err)
		}
	}()
}

func (r *Radio) connectFailed(addr string, pc *pendingConnect, err error) {
	r.mu.Lock()
	if r.connects[addr] != pc || r.sessions[addr] != nil {
		r.mu.Unlock()
		return
	}
	delete(r.connects, addr)
	r.mu.Unlock()
	pc.done(hfp.SLCInfo{}, fmt.Errorf("connect %s: %w", addr, err))
}

func (r *Radio) takeConnect(addr string) *pendingConnect {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc := r.connects[addr]
	delete(r.connects, addr)
	return pc
}

// newConnection adopts the RFCOMM socket handed over by BlueZ. It owns fd
// and closes it on failure.
func (r *Radio) newConnection(addr string, fd int) error {
	r.mu.Lock()
	h := r.handler
	_, outbound := r.connects[addr]
	_, duplicate := r.sessions[addr]
	timeout, caps := r.cmdTimeout, r.rc.Capabilities
	r.mu.Unlock()

	switch {
	case h == nil:
		unix.Close(fd)
		return errStopped
	case duplicate:
		unix.Close(fd)
		return errDuplicate
	case !outbound && !h.AcceptIncoming(addr):
		unix.Close(fd)
		return errNotAccepted
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return err
	}

	s := newSession(addr, os.NewFile(uintptr(fd), "rfcomm"), h, timeout, r.sessionClosed)
	r.mu.Lock()
	if r.handler != h || r.sessions[addr] != nil {
		r.mu.Unlock()
		_ = s.rw.Close()
		return errStopped
	}
	r.sessions[addr] = s
	r.mu.Unlock()

	logger.Info("[bluetooth] %s: service level connection opened", addr)
	go s.run()
	go r.establish(s, caps)
	return nil
}

func (r *Radio) establish(s *session, caps uint32) {
	info, err := s.establish(caps)
	if err == nil {
		s.setReady(info)
		if !s.isReady() {
			err = hfp.ErrDisconnected
		}
	}
	pc := r.takeConnect(s.addr)
	if err != nil {
		logger.Warn("[bluetooth] %s: service level connection setup failed: %v", s.addr, err)
		s.close()
		if pc != nil {
			pc.done(hfp.SLCInfo{}, err)
		}
		return
	}
	logger.Info("[bluetooth] %s: service level connection established", s.addr)
	if pc != nil {
		pc.done(info, nil)
	} else {
		s.h.Connected(s.addr, info)
	}
}

func (r *Radio) sessionClosed(s *session, err error) {
	r.mu.Lock()
	if r.sessions[s.addr] == s {
		delete(r.sessions, s.addr)
	}
	r.mu.Unlock()

	if !s.reportsLoss() {
		return
	}
	if remoteClosed(err) {
		err = hfp.ErrDisconnected
	}
	logger.Info("[bluetooth] %s: service level connection lost: %v", s.addr, err)
	s.h.Disconnected(s.addr, err)
}

// dropConnection ends the connection of addr on request of BlueZ.
func (r *Radio) dropConnection(addr string) {
	r.mu.Lock()
	s := r.sessions[addr]
	r.mu.Unlock()
	if s != nil {
		s.terminate(hfp.ErrDisconnected)
	}
}

func (r *Radio) Disconnect(addr string) {
	r.mu.Lock()
	s := r.sessions[addr]
	pc := r.connects[addr]
	delete(r.connects, addr)
	r.mu.Unlock()

	if s != nil {
		s.close()
	}
	if pc != nil {
		pc.done(hfp.SLCInfo{}, hfp.ErrDisconnected)
	}
}

func (r *Radio) readySession(addr string) *session {
	r.mu.Lock()
	s := r.sessions[addr]
	r.mu.Unlock()
	if s == nil || !s.isReady() {
		return nil
	}
	return s
}

func (r *Radio) SendCommand(addr string, cmd hfp.Command, done func(error)) {
	s := r.readySession(addr)
	if s == nil {
		done(hfp.ErrNotConnected)
		return
	}
	s.send(cmd.AT(), "", nil, done)
}

// OpenAudio starts an SCO connection to addr. The outcome is reported
// through AudioConnected or AudioDisconnected.
func (r *Radio) OpenAudio(addr string) error {
	s := r.readySession(addr)
	if s == nil {
		return hfp.ErrNotConnected
	}
	if !s.beginAudio() {
		return nil
	}
	r.mu.Lock()
	local := r.adapterAddr
	r.mu.Unlock()
	go r.dialAudio(s, local)
	return nil
}

func (r *Radio) dialAudio(s *session, local string) {
	var link *scoLink
	fd, err := dialSCO(local, s.addr)
	if err == nil {
		link, err = newSCOLink(fd, func(l *scoLink, lerr error) { r.audioLost(s, l, lerr) })
	}
	if err != nil {
		if s.endDial(nil) {
			logger.Warn("[bluetooth] %s: audio connection failed: %v", s.addr, err)
			s.h.AudioDisconnected(s.addr, fmt.Errorf("audio connection failed: %w", err))
		}
		return
	}
	if !s.endDial(link) {
		_ = link.Close()
		return
	}
	logger.Debug("[bluetooth] %s: audio connected", s.addr)
	s.h.AudioConnected(s.addr, link)
}

func (r *Radio) CloseAudio(addr string) {
	r.mu.Lock()
	s := r.sessions[addr]
	r.mu.Unlock()
	if s == nil {
		return
	}
	if link := s.takeAudio(); link != nil {
		_ = link.Close()
	}
}

// incomingAudio adopts an SCO connection opened by a gateway with an
// established service level connection.
func (r *Radio) incomingAudio(addr string, fd int) {
	s := r.readySession(addr)
	if s == nil {
		logger.Info("[bluetooth] refusing audio connection from %s", addr)
		unix.Close(fd)
		return
	}
	link, err := newSCOLink(fd, func(l *scoLink, lerr error) { r.audioLost(s, l, lerr) })
	if err != nil {
		logger.Warn("[bluetooth] %s: audio connection failed: %v", addr, err)
		return
	}
	if !s.attachAudio(link) {
		_ = link.Close()
		return
	}
	logger.Debug("[bluetooth] %s: audio connected by gateway", addr)
	s.h.AudioConnecting(addr)
	s.h.AudioConnected(addr, link)
}

func (r *Radio) audioLost(s *session, link *scoLink, err error) {
	if !s.detachAudio(link) {
		return
	}
	if remoteClosed(err) {
		err = nil
	}
	logger.Debug("[bluetooth] %s: audio connection closed: %v", s.addr, err)
	s.h.AudioDisconnected(s.addr, err)
}

// ReadName reads the remote name BlueZ resolved for addr, falling back to
// its alias.
func (r *Radio) ReadName(addr string, done func(string, error)) {
	r.mu.Lock()
	if r.handler == nil {
		r.mu.Unlock()
		done("", hfp.ErrNotStarted)
		return
	}
	obj := r.getObj(r.conn, devicePath(r.adapter, addr))
	r.mu.Unlock()

	go func() {
		err := errors.New("name not available")
		for _, prop := range []string{BT_PROP_NAME, BT_PROP_ALIAS} {
			v, perr := idbus.GetProperty(obj, BLUETOOTH_DEVICE, prop)
			if perr != nil {
				err = perr
				continue
			}
			if name, ok := idbus.ExtractString(v); ok && name != "" {
				done(name, nil)
				return
			}
		}
		done("", err)
	}()
}

// onSignal tracks discovery results and the lifetime of BlueZ and the
// adapter. It returns false once the radio went away.
func (r *Radio) onSignal(sig *dbus.Signal) bool {
	r.mu.Lock()
	adapter := r.adapter
	r.mu.Unlock()

	switch sig.Name {
	case SIGNAL_NAME_OWNER_CHANGED:
		if len(sig.Body) == 3 {
			if owner, _ := sig.Body[2].(string); owner == "" {
				r.lost(core.Wrap(core.ErrNameNoKernelSupport, "Bluetooth service went away", nil))
				return false
			}
		}
	case SIGNAL_INTERFACES_REMOVED:
		path, ifaces, err := idbus.ParseInterfacesRemoved(sig)
		if err != nil {
			logger.Debug("[bluetooth] %v", err)
			return true
		}
		if path == adapter && slices.Contains(ifaces, BLUETOOTH_ADAPTER) {
			r.lost(core.Wrap(core.ErrNameNoKernelSupport, "Bluetooth adapter removed", nil))
			return false
		}
	case SIGNAL_INTERFACES_ADDED:
		path, ifaces, err := idbus.ParseInterfacesAdded(sig)
		if err != nil {
			logger.Debug("[bluetooth] %v", err)
			return true
		}
		dev, ok := ifaces[BLUETOOTH_DEVICE]
		if !ok || idbus.MapObjectPath(dev, BT_PROP_ADAPTER) != adapter {
			return true
		}
		_, hasClass := dev[BT_PROP_CLASS]
		r.deviceSeen(deviceAddress(path, dev), idbus.MapUint32(dev, BT_PROP_CLASS), hasClass)
	case SIGNAL_PROPERTIES_CHANGED:
		changed, iface, err := idbus.FilterSignal(sig)
		if err != nil {
			logger.Debug("[bluetooth] %v", err)
			return true
		}
		switch iface {
		case BLUETOOTH_ADAPTER:
			if sig.Path != adapter {
				return true
			}
			if discovering, ok := idbus.MapBoolOK(changed, "Discovering"); ok && !discovering {
				r.inquiryEnded()
			}
			if powered, ok := idbus.MapBoolOK(changed, BT_PROP_POWERED); ok && !powered {
				logger.Warn("[bluetooth] adapter %s powered off", adapter)
			}
		case BLUETOOTH_DEVICE:
			if !strings.HasPrefix(string(sig.Path), string(adapter)+"/") {
				return true
			}
			_, hasRSSI := changed[BT_PROP_RSSI]
			_, hasClass := changed[BT_PROP_CLASS]
			if hasRSSI || hasClass {
				r.deviceSeen(macFromPath(sig.Path), idbus.MapUint32(changed, BT_PROP_CLASS), hasClass)
			}
		}
	}
	return true
}

// deviceSeen reports a device found while discovering.
func (r *Radio) deviceSeen(addr string, class uint32, hasClass bool) {
	r.mu.Lock()
	if r.classes != nil {
		if hasClass {
			r.classes[addr] = class
		} else {
			class = r.classes[addr]
		}
	}
	discovering, h := r.discovering, r.handler
	r.mu.Unlock()
	if discovering && h != nil && addr != "" {
		h.Discovered(addr, class)
	}
}

func deviceAddress(path dbus.ObjectPath, props map[string]dbus.Variant) string {
	if addr := idbus.MapString(props, BT_PROP_ADDRESS); addr != "" {
		return strings.ToUpper(addr)
	}
	return macFromPath(path)
}
