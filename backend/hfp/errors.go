package hfp

import "github.com/b0bbywan/go-hfpd/backend/core"

var (
	ErrAlreadyClaimed     = core.Failed("Device claimed by another client")
	ErrNotClaimedByCaller = core.Failed("This audio gateway has been claimed by another client")
	ErrNoSuchDevice       = core.Failed("No such audio gateway")
	ErrNoSession          = core.Failed("Unknown client session")
	ErrInvalidAddress     = core.Failed("Invalid Bluetooth address")
	ErrNotConnected       = core.Failed("Audio gateway is not connected")
	ErrNotSupported       = core.Failed("Feature not supported by the audio gateway")
	ErrTimeout            = core.Failed("Command timed out")
	ErrDisconnected       = core.Failed("Audio gateway disconnected")
	ErrRejected           = core.Failed("Command rejected by the audio gateway")
	ErrBusy               = core.Failed("Inquiry already in progress")
	ErrNotStarted         = core.Failed("Bluetooth system is not started")
	ErrShutDown           = core.Failed("Bluetooth system shut down")
	ErrNotKnownOrClaimed  = core.Failed("Device not known or claimed")
	ErrSaveConfig         = core.Failed("Could not save configuration")
	ErrAudioClosed        = core.Failed("Audio connection closed by the audio gateway")
)
