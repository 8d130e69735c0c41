package hfp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/events"
)

func TestAddDevice_ConnectAndName(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	session := env.started(t)

	path, err := env.hf.AddDevice(context.Background(), session, "01:23:45:67:89:ab", false)
	if err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if want := "/net/sf/nohands/hfpd/01_23_45_67_89_AB"; path != want {
		t.Errorf("AddDevice() path = %q, want %q", path, want)
	}
	added := waitEvent(t, env.loop, events.TypeGatewayAdded, nil)
	if ref := added.Data.(GatewayRef); ref.Address != testAddr {
		t.Errorf("ag_added address = %q, want %q", ref.Address, testAddr)
	}

	ag, _ := env.hf.Gateway(context.Background(), testAddr)
	got := info(t, ag)
	if got.StateCode != StateDisconnected || got.CallStateCode != CallIdle || got.AudioCode != AudioDisconnected {
		t.Errorf("new device states = %v/%v/%v, want disconnected/idle/disconnected",
			got.StateCode, got.CallStateCode, got.AudioCode)
	}
	if !got.Claimed || got.Known {
		t.Errorf("claimed/known = %v/%v, want true/false", got.Claimed, got.Known)
	}

	env.radio.autoConnect = false
	if err := ag.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnecting)))
	env.radio.completeConnect(testAddr, nil)
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnected)))
	named := waitEvent(t, env.loop, events.TypeGatewayName, nil)
	if n := named.Data.(NameEvent).Name; n != "Test Phone" {
		t.Errorf("name_resolved = %q, want Test Phone", n)
	}

	got = info(t, ag)
	if !got.Features["ThreeWayCalling"] || got.Features["ECNR"] || !got.Features["CallSetupIndicator"] {
		t.Errorf("features = %v", got.Features)
	}
	if got.RawFeatures != FeatThreeWayCalling {
		t.Errorf("RawFeatures = %d, want %d", got.RawFeatures, FeatThreeWayCalling)
	}
}

func TestConnectFailure(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	session := env.started(t)
	env.radio.autoConnect = false
	if _, err := env.hf.AddDevice(context.Background(), session, testAddr, false); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	ag, _ := env.hf.Gateway(context.Background(), testAddr)
	if err := ag.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnecting)))
	env.radio.completeConnect(testAddr, errors.New("host is down"))
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateDisconnected)))

	if got := info(t, ag); got.RawFeatures != 0 || got.StateCode != StateDisconnected {
		t.Errorf("after failure state = %v raw = %d", got.StateCode, got.RawFeatures)
	}
}

func TestAddDevice_ExclusiveClaim(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	first := env.started(t)
	second, _ := env.hf.NewSession(context.Background())

	if _, err := env.hf.AddDevice(context.Background(), first, testAddr, false); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if _, err := env.hf.AddDevice(context.Background(), second, testAddr, false); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second AddDevice() error = %v, want %v", err, ErrAlreadyClaimed)
	}
	if err := env.hf.RemoveDevice(context.Background(), second, testAddr); !errors.Is(err, ErrNotClaimedByCaller) {
		t.Errorf("RemoveDevice() by other session error = %v, want %v", err, ErrNotClaimedByCaller)
	}
	// the original claim survives
	if _, err := env.hf.AddDevice(context.Background(), first, testAddr, false); err != nil {
		t.Errorf("re-claim by owner error = %v", err)
	}
	if err := env.hf.RemoveDevice(context.Background(), first, "AA:BB:CC:DD:EE:FF"); !errors.Is(err, ErrNoSuchDevice) {
		t.Errorf("RemoveDevice() unknown error = %v, want %v", err, ErrNoSuchDevice)
	}
	if _, err := env.hf.AddDevice(context.Background(), first, "not-an-address", false); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("AddDevice() invalid error = %v, want %v", err, ErrInvalidAddress)
	}
	if _, err := env.hf.AddDevice(context.Background(), "nobody", testAddr, false); !errors.Is(err, ErrNoSession) {
		t.Errorf("AddDevice() unknown session error = %v, want %v", err, ErrNoSession)
	}
}

func TestAddDevice_KnownPersisted(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	session := env.started(t)

	if _, err := env.hf.AddDevice(context.Background(), session, testAddr, true); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	ag, _ := env.hf.Gateway(context.Background(), testAddr)
	if err := ag.SetAutoReconnect(context.Background(), true); err != nil {
		t.Fatalf("SetAutoReconnect() error = %v", err)
	}
	devices := env.store.HandsFree().Devices
	if auto, ok := devices[testAddr]; !ok || !auto {
		t.Errorf("devices = %v, want %s: true", devices, testAddr)
	}

	// known devices survive the end of their session
	if err := env.hf.CloseSession(context.Background(), session); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if _, err := env.hf.Gateway(context.Background(), testAddr); err != nil {
		t.Errorf("known device destroyed: %v", err)
	}
}

func TestLoadKnownDevices(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{
		Devices: map[string]bool{testAddr: true, "bogus": false},
	}, Config{})

	paths, err := env.hf.AudioGateways(context.Background())
	if err != nil {
		t.Fatalf("AudioGateways() error = %v", err)
	}
	if len(paths) != 1 || paths[0] != GatewayPath(testAddr) {
		t.Fatalf("AudioGateways() = %v", paths)
	}

	// auto-reconnect devices connect when the radio starts
	env.started(t)
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnected)))
}

func TestSetAutoReconnect_NotKnownOrClaimed(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{AcceptUnknown: true}, Config{})
	env.started(t)

	if !env.radio.events().AcceptIncoming(testAddr) {
		t.Fatal("AcceptIncoming() = false with acceptunknown")
	}
	ag, err := env.hf.Gateway(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Gateway() error = %v", err)
	}
	if err := ag.SetAutoReconnect(context.Background(), true); !errors.Is(err, ErrNotKnownOrClaimed) {
		t.Errorf("SetAutoReconnect() error = %v, want %v", err, ErrNotKnownOrClaimed)
	}
	if err := ag.SetAutoReconnect(context.Background(), false); err != nil {
		t.Errorf("SetAutoReconnect(false) error = %v", err)
	}
}

func TestAcceptIncoming(t *testing.T) {
	tests := []struct {
		name          string
		acceptUnknown bool
		known         bool
		want          bool
	}{
		{"unknown refused", false, false, false},
		{"unknown accepted", true, false, true},
		{"known accepted", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.HandsFreeConfig{AcceptUnknown: tt.acceptUnknown}
			if tt.known {
				opts.Devices = map[string]bool{testAddr: false}
			}
			env := newTestEnv(t, opts, Config{})
			env.started(t)

			if got := env.radio.events().AcceptIncoming(testAddr); got != tt.want {
				t.Errorf("AcceptIncoming() = %v, want %v", got, tt.want)
			}
			_, err := env.hf.Gateway(context.Background(), testAddr)
			if exists := err == nil; exists != tt.want {
				t.Errorf("record exists = %v, want %v", exists, tt.want)
			}
			if !tt.want {
				return
			}
			env.radio.events().Connected(testAddr, SLCInfo{})
			waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnected)))
		})
	}
}

func TestDisconnect_ForcesAudioAndDetaches(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	_, ag := env.connected(t)
	link := env.withAudio(t, ag)

	if err := env.hf.StartAudio(context.Background(), testAddr, false); err != nil {
		t.Fatalf("StartAudio() error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeSoundState, soundStateIs(soundio.StateGateway))

	if err := ag.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeSoundState, soundStateIs(soundio.StateStopped))

	got := info(t, ag)
	if got.StateCode != StateDisconnected || got.AudioCode != AudioDisconnected {
		t.Errorf("after Disconnect() state/audio = %v/%v, want disconnected/disconnected", got.StateCode, got.AudioCode)
	}
	if !got.Voluntary {
		t.Error("Voluntary = false after Disconnect()")
	}
	if !link.closed.Load() {
		t.Error("audio link should be closed")
	}
	if !env.radio.disconnected(testAddr) {
		t.Error("radio Disconnect() not called")
	}
}

func TestLinkLoss_ForcesAudioDisconnected(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	_, ag := env.connected(t)
	env.withAudio(t, ag)

	env.radio.events().Disconnected(testAddr, errors.New("connection reset"))
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateDisconnected)))

	got := info(t, ag)
	if got.AudioCode != AudioDisconnected {
		t.Errorf("audio = %v, want disconnected", got.AudioCode)
	}
	if got.CallStateCode != CallIdle {
		t.Errorf("call = %v, want idle", got.CallStateCode)
	}
	if got.Voluntary {
		t.Error("Voluntary = true after link loss")
	}
}

func TestStartAudio_Initiate(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	_, ag := env.connected(t)

	if err := env.hf.StartAudio(context.Background(), testAddr, false); err == nil {
		t.Error("StartAudio() without audio and initiate should fail")
	}
	if err := env.hf.StartAudio(context.Background(), testAddr, true); err != nil {
		t.Fatalf("StartAudio(initiate) error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeSoundState, soundStateIs(soundio.StateGatewayConnecting))
	env.radio.events().AudioConnected(testAddr, &fakeLink{})
	waitEvent(t, env.loop, events.TypeSoundState, soundStateIs(soundio.StateGateway))

	if err := ag.CloseAudio(context.Background()); err != nil {
		t.Fatalf("CloseAudio() error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeSoundState, soundStateIs(soundio.StateStopped))
}

func TestAudio_RefusedWhenUnclaimed(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{AcceptUnknown: true}, Config{})
	env.started(t)
	env.radio.events().AcceptIncoming(testAddr)
	env.radio.events().Connected(testAddr, SLCInfo{})
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnected)))

	link := &fakeLink{}
	env.radio.events().AudioConnected(testAddr, link)
	waitEvent(t, env.loop, events.TypeGatewayAudio, stateIs(int(AudioDisconnected)))
	if !link.closed.Load() {
		t.Error("refused audio link should be closed")
	}
}

func TestAudio_AutoAttachKnown(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{
		VoiceAutoConnect: true,
		Devices:          map[string]bool{testAddr: false},
	}, Config{})
	env.started(t)
	env.radio.events().AcceptIncoming(testAddr)
	env.radio.events().Connected(testAddr, SLCInfo{})
	waitEvent(t, env.loop, events.TypeGatewayState, stateIs(int(StateConnected)))

	env.radio.events().AudioConnected(testAddr, &fakeLink{})
	waitEvent(t, env.loop, events.TypeSoundState, soundStateIs(soundio.StateGateway))

	env.radio.events().AudioDisconnected(testAddr, nil)
	waitEvent(t, env.loop, events.TypeSoundAborted, nil)
}

func TestCloseSession_DestroysUnknown(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	session, _ := env.connected(t)

	if err := env.hf.CloseSession(context.Background(), session); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	waitEvent(t, env.loop, events.TypeGatewayRemoved, nil)
	if _, err := env.hf.Gateway(context.Background(), testAddr); !errors.Is(err, ErrNoSuchDevice) {
		t.Errorf("Gateway() after session end error = %v, want %v", err, ErrNoSuchDevice)
	}
	if !env.radio.disconnected(testAddr) {
		t.Error("device should be disconnected")
	}
	if err := env.hf.CloseSession(context.Background(), session); !errors.Is(err, ErrNoSession) {
		t.Errorf("second CloseSession() error = %v, want %v", err, ErrNoSession)
	}
}

func TestCloseSession_VoicePersist(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{VoicePersist: true}, Config{})
	session, ag := env.connected(t)
	env.withAudio(t, ag)

	if err := env.hf.CloseSession(context.Background(), session); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	got := info(t, ag)
	if got.StateCode != StateConnected || got.Claimed {
		t.Fatalf("persisting device state = %v claimed = %v", got.StateCode, got.Claimed)
	}

	env.radio.events().AudioDisconnected(testAddr, nil)
	waitEvent(t, env.loop, events.TypeGatewayRemoved, nil)
	if !env.radio.disconnected(testAddr) {
		t.Error("device should be disconnected once its audio closed")
	}
}

func TestStart_RestartPolicy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		restarts bool
	}{
		{"no kernel support retries", core.Wrap(core.ErrNameNoKernelSupport, "no bluetooth", nil), true},
		{"service conflict suppresses", core.Wrap(core.ErrNameServiceConflict, "profile taken", nil), false},
		{"generic failure suppresses", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, config.HandsFreeConfig{AutoRestart: true}, Config{RestartInterval: 10 * time.Millisecond})
			env.radio.startErr = tt.err
			if err := env.hf.Start(context.Background()); err == nil {
				t.Fatal("Start() should fail")
			}
			time.Sleep(100 * time.Millisecond)

			env.radio.mu.Lock()
			starts := env.radio.starts
			env.radio.mu.Unlock()
			if got := starts > 1; got != tt.restarts {
				t.Errorf("restarted = %v (%d starts), want %v", got, starts, tt.restarts)
			}
		})
	}
}

func TestStop_FailsNameWaiters(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})
	env.started(t)
	env.radio.holdNames = true

	result := make(chan error, 1)
	go func() {
		_, err := env.hf.GetName(context.Background(), "AA:BB:CC:DD:EE:FF")
		result <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := env.hf.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case err := <-result:
		if !errors.Is(err, ErrShutDown) {
			t.Errorf("GetName() error = %v, want %v", err, ErrShutDown)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetName() did not return")
	}
	waitEvent(t, env.loop, events.TypeSystemState, func(e events.Event) bool {
		return !e.Data.(SystemStateEvent).Started
	})
}

func TestGetName(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{}, Config{})

	if _, err := env.hf.GetName(context.Background(), testAddr); !errors.Is(err, ErrNotStarted) {
		t.Errorf("GetName() before start error = %v, want %v", err, ErrNotStarted)
	}
	env.started(t)
	name, err := env.hf.GetName(context.Background(), testAddr)
	if err != nil || name != "Test Phone" {
		t.Errorf("GetName() = %q, %v, want Test Phone", name, err)
	}
	if _, err := env.hf.GetName(context.Background(), "AA:BB:CC:DD:EE:FF"); core.NameOf(err) != core.ErrNameFailed || err == nil {
		t.Errorf("GetName() unresolvable error = %v", err)
	}
}

func TestSetOptions(t *testing.T) {
	env := newTestEnv(t, config.HandsFreeConfig{SecMode: config.SecAuth}, Config{})

	bad := "paranoid"
	if err := env.hf.SetOptions(context.Background(), Options{SecMode: &bad}); err == nil {
		t.Error("SetOptions() with invalid secmode should fail")
	}
	crypt, on := "crypt", true
	caps := uint32(CapECNR)
	if err := env.hf.SetOptions(context.Background(), Options{SecMode: &crypt, VoicePersist: &on, Capabilities: &caps}); err != nil {
		t.Fatalf("SetOptions() error = %v", err)
	}
	st, err := env.hf.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.SecMode != "crypt" || !st.VoicePersist || st.Capabilities != CapECNR || st.AcceptUnknown {
		t.Errorf("Status() = %+v", st)
	}
}
