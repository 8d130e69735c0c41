package pcm

import (
	"errors"
	"os"
	"testing"

	"github.com/gordonklaus/portaudio"

	"github.com/b0bbywan/go-hfpd/backend/pulseaudio"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    options
		wantErr bool
	}{
		{"empty", "", options{}, false},
		{"bare device", "hw:1,0", options{"dev": "hw:1,0"}, false},
		{"pairs", "in=mic, out=speaker", options{"in": "mic", "out": "speaker"}, false},
		{"unknown key", "rate=16000", nil, true},
		{"malformed", "in=mic,speaker", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOptions(tt.in, "dev", "in", "out")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseOptions() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseOptions()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestOptionsPick(t *testing.T) {
	o := options{"dev": "both", "in": "mic"}
	if got := o.pick("in", "dev"); got != "mic" {
		t.Errorf("pick(in, dev) = %q, want mic", got)
	}
	if got := o.pick("out", "dev"); got != "both" {
		t.Errorf("pick(out, dev) = %q, want both", got)
	}
	if got := o.pick("out"); got != "" {
		t.Errorf("pick(out) = %q, want empty", got)
	}
}

func TestXrun(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   portaudio.Error
		wantXrun bool
		wantNil  bool
	}{
		{"nil", nil, portaudio.InputOverflowed, false, true},
		{"overflow", portaudio.InputOverflowed, portaudio.InputOverflowed, true, false},
		{"underflow", portaudio.OutputUnderflowed, portaudio.OutputUnderflowed, true, false},
		{"other", errors.New("device gone"), portaudio.InputOverflowed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := xrun(tt.err, tt.status)
			if (got == nil) != tt.wantNil {
				t.Fatalf("xrun() = %v, want nil %v", got, tt.wantNil)
			}
			if errors.Is(got, soundio.ErrXrun) != tt.wantXrun {
				t.Errorf("errors.Is(xrun(), ErrXrun) = %v, want %v", !tt.wantXrun, tt.wantXrun)
			}
		})
	}
}

func TestManager_RefCount(t *testing.T) {
	inits, terms := 0, 0
	m := &Manager{
		initialize: func() error { inits++; return nil },
		terminate:  func() error { terms++; return nil },
	}

	m.Acquire()
	m.Acquire()
	m.Release()
	if !m.IsInitialized() || terms != 0 {
		t.Errorf("released once: initialized = %v, terminations = %d", m.IsInitialized(), terms)
	}
	m.Release()
	if m.IsInitialized() || inits != 1 || terms != 1 {
		t.Errorf("released twice: initialized = %v, inits = %d, terms = %d", m.IsInitialized(), inits, terms)
	}
}

func TestManager_InitFailure(t *testing.T) {
	m := &Manager{
		initialize: func() error { return errors.New("no audio") },
		terminate:  func() error { return nil },
	}
	if err := m.Acquire(); err == nil {
		t.Error("Acquire() should fail when initialization fails")
	}
	if m.IsInitialized() {
		t.Error("manager should not be initialized")
	}
}

func TestConvertDevices(t *testing.T) {
	got := convertDevices([]pulseaudio.Device{
		{Name: "mic", Description: "Microphone", Source: true},
		{Name: "spk", Description: "Speakers"},
	})
	if len(got) != 2 || !got[0].Input || got[0].Output || got[1].Input || !got[1].Output {
		t.Errorf("convertDevices() = %+v", got)
	}
}

func TestPulse_NoServer(t *testing.T) {
	d := NewPulse(nil, nil)
	if _, err := d.Devices(); err == nil {
		t.Error("Devices() without a server should fail")
	}
}

func TestSetEnv(t *testing.T) {
	os.Unsetenv("HFPD_TEST_SOURCE")
	restore := setEnv(map[string]string{"HFPD_TEST_SOURCE": "mic", "HFPD_TEST_EMPTY": ""})
	if got := os.Getenv("HFPD_TEST_SOURCE"); got != "mic" {
		t.Errorf("HFPD_TEST_SOURCE = %q, want mic", got)
	}
	if _, ok := os.LookupEnv("HFPD_TEST_EMPTY"); ok {
		t.Error("empty values should not be set")
	}
	restore()
	if _, ok := os.LookupEnv("HFPD_TEST_SOURCE"); ok {
		t.Error("restore() should unset HFPD_TEST_SOURCE")
	}
}
