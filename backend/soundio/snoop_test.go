package soundio

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOpenSnoop_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Snoop
	}{
		{"no path", Snoop{Capture: true}},
		{"no direction", Snoop{Path: filepath.Join(t.TempDir(), "x.wav")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := openSnoop(tt.cfg)
			if err != nil || s != nil {
				t.Errorf("openSnoop() = %v, %v, want nil, nil", s, err)
			}
			// a disabled snooper accepts writes
			if err := s.write([]int16{1}, []int16{2}); err != nil {
				t.Errorf("write() on nil snooper error = %v", err)
			}
		})
	}
}

func TestSnoop_MixesBothDirections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snoop.wav")
	s, err := openSnoop(Snoop{Path: path, Capture: true, Playback: true})
	if err != nil {
		t.Fatalf("openSnoop() error = %v", err)
	}
	if err := s.write([]int16{100, 32000}, []int16{50, 32000}); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	if err := s.close(); err != nil {
		t.Fatalf("close() error = %v", err)
	}

	got, err := decodeFile(path)
	if err != nil {
		t.Fatalf("decodeFile() error = %v", err)
	}
	if want := []int16{150, 32767}; !slices.Equal(got, want) {
		t.Errorf("snooped samples = %v, want %v", got, want)
	}
}

func TestSnoop_TruncatesAtOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snoop.wav")
	for i := 0; i < 2; i++ {
		s, err := openSnoop(Snoop{Path: path, Playback: true})
		if err != nil {
			t.Fatalf("openSnoop() error = %v", err)
		}
		s.write(nil, []int16{1, 2, 3})
		s.close()
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != wavHeaderSize+6 {
		t.Errorf("size = %d, want %d", info.Size(), wavHeaderSize+6)
	}
}
