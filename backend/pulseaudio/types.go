package pulseaudio

import (
	"context"

	"github.com/the-jonsey/pulseaudio"

	"github.com/b0bbywan/go-hfpd/cache"
)

type AudioServerKind string

const (
	ServerPulse    AudioServerKind = "pulseaudio"
	ServerPipeWire AudioServerKind = "pipewire"
)

type PulseAudioBackend struct {
	client   *pulseaudio.Client
	server   *pulseaudio.Server
	kind     AudioServerKind
	ctx      context.Context
	cache    *cache.Cache[string, []Device]
	listener *Listener
}

type ServerInfo struct {
	Kind          AudioServerKind `json:"kind"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	User          string          `json:"user"`
	Hostname      string          `json:"hostname"`
	DefaultSink   string          `json:"default_sink"`
	DefaultSource string          `json:"default_source"`
	Volume        float32         `json:"volume"`
}

// Device is a sound server source (capture) or sink (playback).
type Device struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      bool   `json:"source"`
	Default     bool   `json:"default"`
}
