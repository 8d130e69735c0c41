package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestNameOf(t *testing.T) {
	base := errors.New("socket in use")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", base, ErrNameFailed},
		{"named", Wrap(ErrNameServiceConflict, "conflict", base), ErrNameServiceConflict},
		{"wrapped named", fmt.Errorf("start: %w", Wrap(ErrNameNoKernelSupport, "", base)), ErrNameNoKernelSupport},
		{"failed", Failed("nope"), ErrNameFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NameOf(tt.err); got != tt.want {
				t.Errorf("NameOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("base")
	err := Wrap(ErrNameScoConfig, "", base)
	if !errors.Is(err, base) {
		t.Error("Wrap() should keep the cause reachable")
	}
	if err.Error() != "base" {
		t.Errorf("Error() = %q, want base", err.Error())
	}
}

func TestSuppressesRestart(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{ErrNameFailed, true},
		{ErrNameServiceConflict, true},
		{ErrNameScoConfig, true},
		{ErrNameNoKernelSupport, false},
		{ErrNameSoundCardFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuppressesRestart(&Error{Name: tt.name}); got != tt.want {
				t.Errorf("SuppressesRestart(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
