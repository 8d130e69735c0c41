package bluetooth

import (
	"errors"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func newTestSCOLink(t *testing.T) (*scoLink, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Skipf("socketpair: %v", err)
	}
	l, err := newSCOLink(fds[0], nil)
	if err != nil {
		unix.Close(fds[1])
		t.Fatalf("newSCOLink() error = %v", err)
	}
	t.Cleanup(func() {
		l.Close()
		unix.Close(fds[1])
	})
	return l, fds[1]
}

func TestSCOLinkWritePackets(t *testing.T) {
	l, peer := newTestSCOLink(t)

	n, err := l.Write(make([]int16, 48))
	if err != nil || n != 48 {
		t.Fatalf("Write() = %d, %v, want 48, nil", n, err)
	}
	buf := make([]byte, 512)
	for i := 0; i < 2; i++ {
		got, err := unix.Read(peer, buf)
		if err != nil {
			t.Fatalf("peer read error = %v", err)
		}
		if got != scoPacketBytes {
			t.Errorf("packet %d = %d bytes, want %d", i, got, scoPacketBytes)
		}
	}
}

func TestSCOLinkWriteDropsWhenFull(t *testing.T) {
	l, _ := newTestSCOLink(t)

	samples := make([]int16, 1<<20)
	n, err := l.Write(samples)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n == 0 || n >= len(samples) {
		t.Errorf("Write() accepted %d of %d samples, want a partial count", n, len(samples))
	}
}

func TestSCOLinkWriteAfterClose(t *testing.T) {
	l, _ := newTestSCOLink(t)
	l.Close()

	if _, err := l.Write(make([]int16, 24)); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Write() after Close = %v, want %v", err, os.ErrClosed)
	}
}
