package soundio

import (
	"testing"
	"time"
)

func TestPacketSize(t *testing.T) {
	tests := []struct {
		hint int
		want int
	}{
		{0, 160},
		{-5, 160},
		{10, 80},
		{1, 40},
		{500, 800},
	}
	for _, tt := range tests {
		if got := packetSize(tt.hint); got != tt.want {
			t.Errorf("packetSize(%d) = %d, want %d", tt.hint, got, tt.want)
		}
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name       string
		packet     int
		buffer     int
		fillHint   int
		jitterHint int
		wantFill   int
		wantJitter int
	}{
		{"defaults", 160, 4000, 0, 0, 320, 160},
		{"fill below twice packet", 160, 4000, 100, 0, 320, 160},
		{"fill exactly twice packet", 160, 4000, 320, 0, 320, 160},
		{"fill above buffer minus packet", 160, 1600, 5000, 0, 1440, 160},
		{"fill at buffer minus packet", 160, 1600, 1440, 0, 1440, 160},
		{"jitter clamped to buffer", 160, 1600, 800, 2000, 800, 800},
		{"jitter below packet", 160, 4000, 800, 50, 800, 160},
		{"hints inside bounds", 160, 4000, 960, 480, 960, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := negotiate(tt.packet, tt.buffer, tt.fillHint, tt.jitterHint)
			if plan.fill != tt.wantFill {
				t.Errorf("fill = %d, want %d", plan.fill, tt.wantFill)
			}
			if plan.jitter != tt.wantJitter {
				t.Errorf("jitter = %d, want %d", plan.jitter, tt.wantJitter)
			}
			if plan.fill+plan.jitter > tt.buffer {
				t.Errorf("fill+jitter = %d exceeds buffer %d", plan.fill+plan.jitter, tt.buffer)
			}
		})
	}
}

func TestWatchdogTimeout(t *testing.T) {
	if got := watchdogTimeout(160); got != 500*time.Millisecond {
		t.Errorf("watchdogTimeout(160) = %v, want 500ms", got)
	}
	if got := watchdogTimeout(800); got != 1500*time.Millisecond {
		t.Errorf("watchdogTimeout(800) = %v, want 1.5s", got)
	}
}

func TestBufferPlanActual(t *testing.T) {
	got := negotiate(160, 4000, 0, 0).actual()
	want := Buffering{PacketInterval: 20, MinBufferFill: 40, JitterWindow: 20}
	if got != want {
		t.Errorf("actual() = %+v, want %+v", got, want)
	}
}
