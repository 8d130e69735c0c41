package soundio

import (
	"errors"
	"time"
)

// State is the reported state of the routing engine. Values are part of the
// client protocol.
type State int

const (
	StateInvalid State = iota
	StateDeconfigured
	StateStopped
	StateGatewayConnecting
	StateGateway
	StateLoopback
	StateMembuf
	StateFile
)

var stateNames = map[State]string{
	StateInvalid:           "invalid",
	StateDeconfigured:      "deconfigured",
	StateStopped:           "stopped",
	StateGatewayConnecting: "ag_connecting",
	StateGateway:           "ag",
	StateLoopback:          "loopback",
	StateMembuf:            "membuf",
	StateFile:              "file",
}

func (s State) String() string { return stateNames[s] }

// Streaming reports whether an endpoint is attached or pending.
func (s State) Streaming() bool { return s >= StateGatewayConnecting }

// Kind identifies the endpoint variant.
type Kind int

const (
	KindNone Kind = iota
	KindGateway
	KindFile
	KindLoopback
	KindMembuf
)

// Format is fixed for every stream: signed 16 bit little endian mono.
const (
	SampleRate = 8000
	Channels   = 1
)

// SamplesFor converts a duration to a sample count at SampleRate.
func SamplesFor(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}

// DurationOf converts a sample count to a duration at SampleRate.
func DurationOf(samples int) time.Duration {
	return time.Duration(samples) * time.Second / SampleRate
}

var (
	// ErrXrun marks an overrun or underrun reported by a stream; the pump
	// counts it and carries on.
	ErrXrun = errors.New("soundio: xrun")
	// ErrClosed is returned by endpoints used after Close.
	ErrClosed = errors.New("soundio: endpoint closed")
)

// DeviceInfo describes a device a driver can open.
type DeviceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Input       bool   `json:"input"`
	Output      bool   `json:"output"`
}

// Driver opens full duplex streams on the local sound hardware.
type Driver interface {
	Name() string
	Description() string
	Devices() ([]DeviceInfo, error)
	Open(opts string, packet int) (Stream, error)
}

// Stream is an open full duplex hardware stream. Read and Write block for
// one packet; both may return an error wrapping ErrXrun.
type Stream interface {
	BufferSize() int
	Read(p []int16) error
	Write(p []int16) error
	// Pending is the number of playback samples queued in the hardware.
	Pending() int
	Close() error
}

// Endpoint is the non-hardware side of a route. Read and Write are only
// called from the pump goroutine between Open and Close.
type Endpoint interface {
	Kind() Kind
	Name() string
	Open(packet int) error
	Close()
	// BufferSize is the capacity in samples available for buffering the
	// endpoint to hardware direction, 0 when unbounded.
	BufferSize() int
	// Clocked endpoints produce samples on their own clock; Read then
	// returns whatever is available. Unclocked endpoints fill p entirely.
	Clocked() bool
	// Read returns samples for hardware playback; io.EOF ends the stream.
	Read(p []int16) (int, error)
	// Write consumes hardware captured samples; io.EOF ends the stream.
	Write(p []int16) error
	// Counters returns samples received from the remote side and samples
	// the remote side accepted, each counted at the remote side's pace.
	Counters() (in, out uint64)
}

// GatewayEndpoint is an endpoint backed by an audio gateway audio link.
type GatewayEndpoint interface {
	Endpoint
	AudioConnected() bool
	OpenAudio() error
}

// SkewType classifies a SkewReport.
type SkewType uint8

const (
	SkewXrun      SkewType = 1
	SkewHardware  SkewType = 2
	SkewEndpoint  SkewType = 3
	SkewInterface SkewType = 4
)

type SkewReport struct {
	Type  SkewType `json:"type"`
	Value float64  `json:"value"`
}

type MonitorReport struct {
	Position     uint32 `json:"position"`
	MaxAmplitude uint16 `json:"max_amplitude"`
}

type AbortReport struct {
	Name        string `json:"error_name"`
	Description string `json:"description"`
}

// MembufContents is a copy of both memory buffer regions.
type MembufContents struct {
	Size     int     `json:"size"`
	Captured []int16 `json:"captured"`
	Playback []int16 `json:"playback"`
}

// Buffering holds the packet interval, minimum fill and jitter window, as
// hints (milliseconds, 0 for defaults) or negotiated values.
type Buffering struct {
	PacketInterval int `json:"packet_interval"`
	MinBufferFill  int `json:"min_buffer_fill"`
	JitterWindow   int `json:"jitter_window"`
}

type Snoop struct {
	Path     string `json:"path"`
	Capture  bool   `json:"capture"`
	Playback bool   `json:"playback"`
}

// Status is a snapshot of the engine.
type Status struct {
	State      string    `json:"state"`
	StateCode  State     `json:"state_code"`
	Driver     string    `json:"driver"`
	DriverOpts string    `json:"driver_opts"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Mute       bool      `json:"mute"`
	Hints      Buffering `json:"hints"`
	Actual     Buffering `json:"actual"`
	Snoop      Snoop     `json:"snoop"`
	MembufSize int       `json:"membuf_size"`
}
