package hfp

import (
	"fmt"
	"strings"
)

const pathPrefix = "/net/sf/nohands/hfpd/"

// State is the service level state of an audio gateway.
type State int

const (
	StateInvalid State = iota
	StateDestroyed
	StateDisconnected
	StateConnecting
	StateConnected
)

var stateNames = map[State]string{
	StateInvalid:      "invalid",
	StateDestroyed:    "destroyed",
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
}

func (s State) String() string { return stateNames[s] }

// CallState is the call state of an audio gateway.
type CallState int

const (
	CallInvalid CallState = iota
	CallIdle
	CallConnecting
	CallEstablished
	CallWaiting
	CallEstablishedWaiting
)

var callStateNames = map[CallState]string{
	CallInvalid:            "invalid",
	CallIdle:               "idle",
	CallConnecting:         "connecting",
	CallEstablished:        "established",
	CallWaiting:            "waiting",
	CallEstablishedWaiting: "established_waiting",
}

func (s CallState) String() string { return callStateNames[s] }

// AudioState is the state of the audio connection of an audio gateway.
type AudioState int

const (
	AudioInvalid AudioState = iota
	AudioDisconnected
	AudioConnecting
	AudioConnected
)

var audioStateNames = map[AudioState]string{
	AudioInvalid:      "invalid",
	AudioDisconnected: "disconnected",
	AudioConnecting:   "connecting",
	AudioConnected:    "connected",
}

func (s AudioState) String() string { return audioStateNames[s] }

// ParseAddress validates a Bluetooth address and returns it upper cased.
func ParseAddress(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", ErrInvalidAddress
	}
	for _, p := range parts {
		if len(p) != 2 || !isHex(p[0]) || !isHex(p[1]) {
			return "", ErrInvalidAddress
		}
	}
	return s, nil
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'F'
}

// GatewayPath returns the object path of the gateway at addr.
func GatewayPath(addr string) string {
	return pathPrefix + strings.ReplaceAll(addr, ":", "_")
}

// GatewayInfo is a snapshot of an audio gateway.
type GatewayInfo struct {
	Path          string         `json:"path"`
	Address       string         `json:"address"`
	Name          string         `json:"name,omitempty"`
	State         string         `json:"state"`
	StateCode     State          `json:"state_code"`
	CallState     string         `json:"call_state"`
	CallStateCode CallState      `json:"call_state_code"`
	AudioState    string         `json:"audio_state"`
	AudioCode     AudioState     `json:"audio_state_code"`
	Known         bool           `json:"known"`
	Claimed       bool           `json:"claimed"`
	AutoReconnect bool           `json:"auto_reconnect"`
	Voluntary     bool           `json:"voluntary_disconnect"`
	Features      Features       `json:"features"`
	RawFeatures   uint32         `json:"raw_features"`
	Indicators    map[string]int `json:"indicators,omitempty"`
}

// Status is a snapshot of the hands-free service.
type Status struct {
	SystemState      bool     `json:"system_state"`
	AutoSave         bool     `json:"autosave"`
	SecMode          string   `json:"secmode"`
	AutoRestart      bool     `json:"autorestart"`
	AcceptUnknown    bool     `json:"acceptunknown"`
	VoicePersist     bool     `json:"voicepersist"`
	VoiceAutoConnect bool     `json:"voiceautoconnect"`
	ServiceName      string   `json:"servicename"`
	ServiceDesc      string   `json:"servicedesc"`
	Capabilities     uint32   `json:"capabilities"`
	Inquiry          bool     `json:"inquiry"`
	AudioGateways    []string `json:"audio_gateways"`
}

// Options is a partial update of the daemon options; nil fields are left
// unchanged.
type Options struct {
	AutoSave         *bool   `json:"autosave,omitempty"`
	SecMode          *string `json:"secmode,omitempty"`
	AutoRestart      *bool   `json:"autorestart,omitempty"`
	AcceptUnknown    *bool   `json:"acceptunknown,omitempty"`
	VoicePersist     *bool   `json:"voicepersist,omitempty"`
	VoiceAutoConnect *bool   `json:"voiceautoconnect,omitempty"`
	ServiceName      *string `json:"servicename,omitempty"`
	ServiceDesc      *string `json:"servicedesc,omitempty"`
	Capabilities     *uint32 `json:"capabilities,omitempty"`
}

// Event payloads.

type GatewayRef struct {
	Path    string `json:"path"`
	Address string `json:"address"`
}

type StateChange struct {
	GatewayRef
	State int    `json:"state"`
	Name  string `json:"name"`
}

type RingEvent struct {
	GatewayRef
	CallerID string `json:"caller_id"`
}

type IndicatorEvent struct {
	GatewayRef
	Indicator string `json:"indicator"`
	Value     int    `json:"value"`
}

type NameEvent struct {
	GatewayRef
	Name string `json:"name"`
}

type AutoReconnectEvent struct {
	GatewayRef
	AutoReconnect bool `json:"auto_reconnect"`
}

type SystemStateEvent struct {
	Started bool `json:"started"`
}

type InquiryResult struct {
	Address string `json:"address"`
	Class   uint32 `json:"class"`
}

type InquiryStateEvent struct {
	Scanning bool `json:"scanning"`
}

func (r GatewayRef) String() string { return fmt.Sprintf("AG %s", r.Address) }
