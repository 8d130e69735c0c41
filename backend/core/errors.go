package core

import "errors"

// Error names reported to clients.
const (
	ErrNameFailed          = "net.sf.nohands.hfpd.Error"
	ErrNameNoKernelSupport = "net.sf.nohands.hfpd.Error.BtNoKernelSupport"
	ErrNameServiceConflict = "net.sf.nohands.hfpd.Error.BtServiceConflict"
	ErrNameScoConfig       = "net.sf.nohands.hfpd.Error.BtScoConfigError"
	ErrNameSoundCardFailed = "net.sf.nohands.hfpd.Error.SoundIoSoundCardFailed"
)

// Error is a failure carrying a client visible name.
type Error struct {
	Name    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Failed returns a generic named error.
func Failed(msg string) *Error {
	return &Error{Name: ErrNameFailed, Message: msg}
}

// Wrap attaches a name to err, keeping it reachable through errors.Is.
func Wrap(name, msg string, err error) *Error {
	return &Error{Name: name, Message: msg, Err: err}
}

// NameOf returns the client visible name of err, ErrNameFailed by default.
func NameOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Name != "" {
		return e.Name
	}
	return ErrNameFailed
}

// SuppressesRestart reports whether err must stop automatic radio restarts
// until an explicit start.
func SuppressesRestart(err error) bool {
	switch NameOf(err) {
	case ErrNameFailed, ErrNameServiceConflict, ErrNameScoConfig:
		return true
	}
	return false
}
