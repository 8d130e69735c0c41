package hfp

import (
	"context"
	"fmt"

	"github.com/b0bbywan/go-hfpd/config"
)

// RadioConfig is handed to the radio service when it starts.
type RadioConfig struct {
	Adapter      string
	SecMode      config.SecMode
	ServiceName  string
	ServiceDesc  string
	Capabilities uint32
}

// SLCInfo describes a freshly established service level connection.
type SLCInfo struct {
	// Features is the bitfield advertised by the audio gateway.
	Features uint32
	// Indicators holds the initial indicator values by name.
	Indicators map[string]int
}

// AudioLink is an open audio connection carrying 8kHz mono samples.
type AudioLink interface {
	// Read returns the samples received so far without blocking.
	Read(p []int16) (int, error)
	// Write sends p and returns how many samples the link accepted. The
	// count follows the link's own pacing rather than the caller's.
	Write(p []int16) (int, error)
	// BufferSize is the capacity of the receive buffer in samples.
	BufferSize() int
	Close() error
}

// Radio is the Bluetooth radio service. Methods are called from loop tasks;
// only Start and Stop may block. Completions are reported through callbacks
// that may run on any goroutine.
type Radio interface {
	Start(ctx context.Context, cfg RadioConfig, h RadioHandler) error
	Stop()
	StartInquiry() error
	StopInquiry() error
	Connect(addr string, done func(SLCInfo, error))
	Disconnect(addr string)
	SendCommand(addr string, cmd Command, done func(error))
	OpenAudio(addr string) error
	CloseAudio(addr string)
	ReadName(addr string, done func(string, error))
}

// RadioHandler receives unsolicited radio events. Methods may be called from
// any goroutine except the loop.
type RadioHandler interface {
	// AcceptIncoming decides whether an inbound connection is admitted.
	AcceptIncoming(addr string) bool
	// Connected reports a service level connection initiated by the
	// gateway and admitted by AcceptIncoming.
	Connected(addr string, info SLCInfo)
	Disconnected(addr string, err error)
	Discovered(addr string, class uint32)
	InquiryDone()
	Indicator(addr, name string, value int)
	Ring(addr, callerID string)
	AudioConnecting(addr string)
	AudioConnected(addr string, link AudioLink)
	AudioDisconnected(addr string, err error)
	// Stopped reports that the radio service went away on its own. It is
	// not called after Radio.Stop.
	Stopped(err error)
}

// CommandKind enumerates the call control commands.
type CommandKind int

const (
	CmdDial CommandKind = iota + 1
	CmdRedial
	CmdHangUp
	CmdDtmf
	CmdAnswer
	CmdDropHeldUdub
	CmdSwapDropActive
	CmdSwapHoldActive
	CmdLink
	CmdTransfer
)

var commandNames = map[CommandKind]string{
	CmdDial:           "dial",
	CmdRedial:         "redial",
	CmdHangUp:         "hangup",
	CmdDtmf:           "dtmf",
	CmdAnswer:         "answer",
	CmdDropHeldUdub:   "drop_held_udub",
	CmdSwapDropActive: "swap_drop_active",
	CmdSwapHoldActive: "swap_hold_active",
	CmdLink:           "link",
	CmdTransfer:       "transfer",
}

func (k CommandKind) String() string { return commandNames[k] }

// Command is a call control request sent to an audio gateway.
type Command struct {
	Kind CommandKind
	Arg  string
}

// AT renders the command line sent over the service level connection.
func (c Command) AT() string {
	switch c.Kind {
	case CmdDial:
		return "ATD" + c.Arg + ";"
	case CmdRedial:
		return "AT+BLDN"
	case CmdHangUp:
		return "AT+CHUP"
	case CmdDtmf:
		return "AT+VTS=" + c.Arg
	case CmdAnswer:
		return "ATA"
	case CmdDropHeldUdub:
		return "AT+CHLD=0"
	case CmdSwapDropActive:
		return "AT+CHLD=1"
	case CmdSwapHoldActive:
		return "AT+CHLD=2"
	case CmdLink:
		return "AT+CHLD=3"
	case CmdTransfer:
		return "AT+CHLD=4"
	}
	return ""
}

// needsThreeWay reports commands that depend on three way calling.
func (c Command) needsThreeWay() bool {
	switch c.Kind {
	case CmdDropHeldUdub, CmdSwapDropActive, CmdSwapHoldActive, CmdLink, CmdTransfer:
		return true
	}
	return false
}

func (c Command) String() string {
	if c.Arg != "" {
		return fmt.Sprintf("%s(%s)", c.Kind, c.Arg)
	}
	return c.Kind.String()
}
