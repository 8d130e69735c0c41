package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/b0bbywan/go-hfpd/logger"
)

// Store owns the persistent options. Readers get value snapshots; writers go
// through Update*, which saves when autosave is on and rolls back on failure.
type Store struct {
	mu        sync.Mutex
	v         *viper.Viper
	path      string
	handsfree HandsFreeConfig
	audio     AudioConfig
	// write replaces the viper file writer in tests
	write func(path string) error
}

func NewStore(v *viper.Viper, path string, hf HandsFreeConfig, audio AudioConfig) *Store {
	s := &Store{
		v:         v,
		path:      path,
		handsfree: cloneHandsFree(hf),
		audio:     cloneAudio(audio),
	}
	s.write = s.writeFile
	return s
}

// HandsFree returns a snapshot of the daemon options.
func (s *Store) HandsFree() HandsFreeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneHandsFree(s.handsfree)
}

// Audio returns a snapshot of the audio options.
func (s *Store) Audio() AudioConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAudio(s.audio)
}

// UpdateHandsFree applies fn to a copy of the daemon options.
func (s *Store) UpdateHandsFree(fn func(*HandsFreeConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.handsfree
	next := cloneHandsFree(prev)
	fn(&next)
	s.handsfree = next
	if err := s.autosave(); err != nil {
		s.handsfree = prev
		return err
	}
	return nil
}

// UpdateAudio applies fn to a copy of the audio options.
func (s *Store) UpdateAudio(fn func(*AudioConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.audio
	next := cloneAudio(prev)
	fn(&next)
	s.audio = next
	if err := s.autosave(); err != nil {
		s.audio = prev
		return err
	}
	return nil
}

// Save writes the current options regardless of autosave.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *Store) autosave() error {
	if !s.handsfree.AutoSave {
		return nil
	}
	return s.save()
}

func (s *Store) save() error {
	hf, audio := s.handsfree, s.audio
	s.v.Set("daemon.autosave", hf.AutoSave)
	s.v.Set("daemon.secmode", string(hf.SecMode))
	s.v.Set("daemon.autorestart", hf.AutoRestart)
	s.v.Set("daemon.acceptunknown", hf.AcceptUnknown)
	s.v.Set("daemon.voicepersist", hf.VoicePersist)
	s.v.Set("daemon.voiceautoconnect", hf.VoiceAutoConnect)
	s.v.Set("daemon.servicename", hf.ServiceName)
	s.v.Set("daemon.servicedesc", hf.ServiceDesc)
	s.v.Set("devices", maps.Clone(hf.Devices))

	s.v.Set("audio.driver", audio.Driver)
	s.v.Set("audio.driveropts", audio.DriverOpts)
	s.v.Set("audio.packetinterval", audio.PacketInterval)
	s.v.Set("audio.minbufferfill", audio.MinBufferFill)
	s.v.Set("audio.jitterwindow", audio.JitterWindow)
	if audio.DSP != nil {
		s.v.Set("dsp.denoise", audio.DSP.Denoise)
		s.v.Set("dsp.echocancel_ms", audio.DSP.EchoCancelMs)
		s.v.Set("dsp.autogain", audio.DSP.AutoGain)
	}

	if err := s.write(s.path); err != nil {
		logger.Warn("[config] failed to save %s: %v", s.path, err)
		return fmt.Errorf("save config: %w", err)
	}
	logger.Debug("[config] saved %s", s.path)
	return nil
}

func (s *Store) writeFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return s.v.WriteConfigAs(path)
}

func cloneHandsFree(in HandsFreeConfig) HandsFreeConfig {
	out := in
	out.Devices = maps.Clone(in.Devices)
	if out.Devices == nil {
		out.Devices = map[string]bool{}
	}
	return out
}

func cloneAudio(in AudioConfig) AudioConfig {
	out := in
	if in.DSP != nil {
		dsp := *in.DSP
		out.DSP = &dsp
	}
	return out
}
