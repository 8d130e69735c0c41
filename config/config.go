package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/b0bbywan/go-hfpd/logger"
)

const (
	AppName     = "hfpd"
	AppVersion  = "0.1.0"
	serviceType = "_hfpd._tcp"
	domain      = "local."
)

type Config struct {
	Api        *ApiConfig
	Zeroconf   *ZeroConfig
	Bluetooth  *BluetoothConfig
	Pulseaudio *PulseAudioConfig
	Login1     *Login1Config
	Store      *Store
	LogLevel   logger.Level
	LogLevels  map[string]logger.Level
	Journal    bool
}

// Login1Config controls the suspend watcher.
type Login1Config struct {
	Enabled bool
}

type ApiConfig struct {
	Enabled bool
	SSE     bool
	Port    int
	Listens []string
	CORS    *CORSConfig
}

type CORSConfig struct {
	Origins []string
}

type ZeroConfig struct {
	Enabled      bool
	InstanceName string
	ServiceType  string
	Domain       string
	Port         int
	TxtRecords   []string
	Listen       []net.Interface
}

type BluetoothConfig struct {
	Enabled         bool
	Adapter         string
	Timeout         time.Duration
	CommandTimeout  time.Duration
	InquiryDuration time.Duration
}

type PulseAudioConfig struct {
	Enabled       bool
	XDGRuntimeDir string
}

// SecMode is the link security level requested from the radio.
type SecMode string

const (
	SecNone  SecMode = "none"
	SecAuth  SecMode = "auth"
	SecCrypt SecMode = "crypt"
)

// ParseSecMode repairs unknown values to SecAuth.
func ParseSecMode(s string) (SecMode, bool) {
	switch SecMode(strings.ToLower(strings.TrimSpace(s))) {
	case SecNone:
		return SecNone, true
	case SecAuth:
		return SecAuth, true
	case SecCrypt:
		return SecCrypt, true
	default:
		return SecAuth, false
	}
}

// HandsFreeConfig holds the persistent daemon options and the known device list.
type HandsFreeConfig struct {
	AutoSave         bool            `json:"autosave"`
	SecMode          SecMode         `json:"secmode"`
	AutoRestart      bool            `json:"autorestart"`
	AcceptUnknown    bool            `json:"acceptunknown"`
	VoicePersist     bool            `json:"voicepersist"`
	VoiceAutoConnect bool            `json:"voiceautoconnect"`
	ServiceName      string          `json:"servicename"`
	ServiceDesc      string          `json:"servicedesc"`
	Devices          map[string]bool `json:"devices"`
}

type AudioConfig struct {
	Driver         string     `json:"driver"`
	DriverOpts     string     `json:"driveropts"`
	PacketInterval int        `json:"packetinterval"`
	MinBufferFill  int        `json:"minbufferfill"`
	JitterWindow   int        `json:"jitterwindow"`
	DSP            *DSPConfig `json:"dsp"`
}

type DSPConfig struct {
	Denoise      bool `json:"denoise"`
	EchoCancelMs int  `json:"echocancel_ms"`
	AutoGain     int  `json:"autogain"`
}

func interfaceForIP(ip string) (*net.Interface, error) {
	if ip == "127.0.0.1" {
		return nil, nil
	}
	listenIP := net.ParseIP(ip)
	if listenIP == nil {
		return nil, fmt.Errorf("invalid bind: %s", ip)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			var ifaceIP net.IP

			switch v := addr.(type) {
			case *net.IPNet:
				ifaceIP = v.IP
			case *net.IPAddr:
				ifaceIP = v.IP
			}

			if ifaceIP != nil && ifaceIP.Equal(listenIP) {
				return &iface, nil
			}
		}
	}

	return nil, fmt.Errorf("no interface found for IP %s", ip)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.sse", true)
	v.SetDefault("api.port", 8018)
	v.SetDefault("bind", "127.0.0.1")
	v.SetDefault("zeroconf.enabled", false)
	v.SetDefault("pulseaudio.enabled", true)
	v.SetDefault("login1.enabled", true)

	v.SetDefault("LogLevel", "WARN")
	v.SetDefault("log.levels", map[string]string{})
	v.SetDefault("log.journal", false)

	v.SetDefault("bluetooth.enabled", true)
	v.SetDefault("bluetooth.adapter", "hci0")
	v.SetDefault("bluetooth.timeout", "5s")
	v.SetDefault("bluetooth.command_timeout", "10s")
	v.SetDefault("bluetooth.inquiry", "5s")

	v.SetDefault("daemon.autosave", true)
	v.SetDefault("daemon.secmode", string(SecAuth))
	v.SetDefault("daemon.autorestart", true)
	v.SetDefault("daemon.acceptunknown", false)
	v.SetDefault("daemon.voicepersist", false)
	v.SetDefault("daemon.voiceautoconnect", false)
	v.SetDefault("daemon.servicename", "Handsfree")
	v.SetDefault("daemon.servicedesc", "Hands Free Audio Gateway client")
	v.SetDefault("daemon.savefile", "")

	v.SetDefault("audio.driver", "")
	v.SetDefault("audio.driveropts", "")
	v.SetDefault("audio.packetinterval", 0)
	v.SetDefault("audio.minbufferfill", 0)
	v.SetDefault("audio.jitterwindow", 0)

	v.SetDefault("dsp.denoise", true)
	v.SetDefault("dsp.echocancel_ms", 100)
	v.SetDefault("dsp.autogain", 10000)
}

// savePath picks the file written by Store.Save: daemon.savefile, the file
// that was read, or the user config directory.
func savePath(v *viper.Viper) string {
	if p := v.GetString("daemon.savefile"); p != "" {
		return p
	}
	if p := v.ConfigFileUsed(); p != "" {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", AppName, "config.yaml")
	}
	return filepath.Join("/etc", AppName, "config.yaml")
}

func New() (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)
	// Load from configuration file
	v.SetConfigName("config")                       // name of config file (without extension)
	v.SetConfigType("yaml")                         // config file format
	v.AddConfigPath(filepath.Join("/etc", AppName)) // Global configuration path
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", AppName)) // User config path
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with defaults if not found
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			logger.Warn("[config] failed to read config: %v", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	port := v.GetInt("api.port")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", port)
	}

	bind := v.GetString("bind")
	var interfaces []net.Interface
	inet, err := interfaceForIP(bind)
	if err == nil && inet != nil {
		interfaces = append(interfaces, *inet)
	}

	xdgRuntimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if xdgRuntimeDir == "" {
		xdgRuntimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}

	apiCfg := ApiConfig{
		Enabled: v.GetBool("api.enabled"),
		SSE:     v.GetBool("api.sse"),
		Port:    port,
		Listens: []string{net.JoinHostPort(bind, fmt.Sprint(port))},
	}
	if origins := v.GetStringSlice("api.cors.origins"); len(origins) > 0 {
		apiCfg.CORS = &CORSConfig{Origins: origins}
	}

	btCfg := BluetoothConfig{
		Enabled:         v.GetBool("bluetooth.enabled"),
		Adapter:         v.GetString("bluetooth.adapter"),
		Timeout:         positiveDuration(v, "bluetooth.timeout", 5*time.Second),
		CommandTimeout:  positiveDuration(v, "bluetooth.command_timeout", 10*time.Second),
		InquiryDuration: positiveDuration(v, "bluetooth.inquiry", 5*time.Second),
	}

	zerocfg := ZeroConfig{
		Enabled:      v.GetBool("zeroconf.enabled"),
		InstanceName: AppName,
		ServiceType:  serviceType,
		Port:         port,
		Domain:       domain,
		TxtRecords:   []string{"version=" + AppVersion, "adapter=" + btCfg.Adapter},
		Listen:       interfaces,
	}

	pulsecfg := PulseAudioConfig{
		Enabled:       v.GetBool("pulseaudio.enabled"),
		XDGRuntimeDir: xdgRuntimeDir,
	}

	secMode, ok := ParseSecMode(v.GetString("daemon.secmode"))
	if !ok {
		logger.Warn("[config] invalid secmode %q, using %s", v.GetString("daemon.secmode"), secMode)
	}

	hf := HandsFreeConfig{
		AutoSave:         v.GetBool("daemon.autosave"),
		SecMode:          secMode,
		AutoRestart:      v.GetBool("daemon.autorestart"),
		AcceptUnknown:    v.GetBool("daemon.acceptunknown"),
		VoicePersist:     v.GetBool("daemon.voicepersist"),
		VoiceAutoConnect: v.GetBool("daemon.voiceautoconnect"),
		ServiceName:      v.GetString("daemon.servicename"),
		ServiceDesc:      v.GetString("daemon.servicedesc"),
		Devices:          loadDevices(v),
	}

	audio := AudioConfig{
		Driver:         v.GetString("audio.driver"),
		DriverOpts:     v.GetString("audio.driveropts"),
		PacketInterval: v.GetInt("audio.packetinterval"),
		MinBufferFill:  v.GetInt("audio.minbufferfill"),
		JitterWindow:   v.GetInt("audio.jitterwindow"),
		DSP: &DSPConfig{
			Denoise:      v.GetBool("dsp.denoise"),
			EchoCancelMs: v.GetInt("dsp.echocancel_ms"),
			AutoGain:     v.GetInt("dsp.autogain"),
		},
	}

	cfg := Config{
		Api:        &apiCfg,
		Zeroconf:   &zerocfg,
		Bluetooth:  &btCfg,
		Pulseaudio: &pulsecfg,
		Login1:     &Login1Config{Enabled: v.GetBool("login1.enabled")},
		Store:      NewStore(v, savePath(v), hf, audio),
		LogLevel:   logger.ParseLevel(v.GetString("LogLevel")),
		LogLevels:  parseLogLevels(v.GetStringMapString("log.levels")),
		Journal:    v.GetBool("log.journal"),
	}

	return &cfg, nil
}

func positiveDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return def
}

func parseLogLevels(in map[string]string) map[string]logger.Level {
	out := make(map[string]logger.Level, len(in))
	for component, level := range in {
		out[component] = logger.ParseLevel(level)
	}
	return out
}

// loadDevices reads the known device map. Keys are Bluetooth addresses,
// values their auto-reconnect flag.
func loadDevices(v *viper.Viper) map[string]bool {
	devices := map[string]bool{}
	for addr, raw := range v.GetStringMap("devices") {
		autoReconnect := false
		switch val := raw.(type) {
		case bool:
			autoReconnect = val
		case string:
			autoReconnect = strings.EqualFold(val, "true")
		}
		devices[strings.ToUpper(addr)] = autoReconnect
	}
	return devices
}
