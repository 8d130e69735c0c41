package bluetooth

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/logger"
)

const (
	// scoPacketBytes is the payload written per SCO packet, 24 samples.
	scoPacketBytes = 48
	// scoBufferSamples holds 200ms of 8kHz audio.
	scoBufferSamples = 1600
	scoListenBacklog = 5
	// scoSendWait bounds how long a packet waits for room in the send queue.
	scoSendWait = 5 * time.Millisecond
)

// sockaddrSCO mirrors the kernel struct sockaddr_sco.
type sockaddrSCO struct {
	Family uint16
	Bdaddr [6]byte
}

// parseBdaddr converts a textual address into kernel byte order.
func parseBdaddr(addr string) ([6]byte, error) {
	var b [6]byte
	hw, err := net.ParseMAC(addr)
	if err != nil || len(hw) != 6 {
		return b, fmt.Errorf("invalid bluetooth address %q", addr)
	}
	for i := 0; i < 6; i++ {
		b[i] = hw[5-i]
	}
	return b, nil
}

func formatBdaddr(b [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
}

func scoSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_SCO)
	if err != nil {
		if errors.Is(err, unix.EAFNOSUPPORT) || errors.Is(err, unix.EPROTONOSUPPORT) {
			return -1, core.Wrap(core.ErrNameNoKernelSupport, "Kernel lacks Bluetooth SCO support", err)
		}
		return -1, err
	}
	return fd, nil
}

// x/sys/unix has no SCO socket address, so bind and connect go through raw
// system calls.
func scoSyscall(trap uintptr, fd int, b [6]byte) error {
	sa := sockaddrSCO{Family: unix.AF_BLUETOOTH, Bdaddr: b}
	_, _, errno := unix.Syscall(trap, uintptr(fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		return errno
	}
	return nil
}

// scoListener accepts audio connections opened by audio gateways.
type scoListener struct {
	file *os.File
	done chan struct{}
}

// listenSCO binds the SCO listening socket of the local adapter. A socket
// already bound by another process is a service conflict.
func listenSCO(local string, accept func(addr string, fd int)) (*scoListener, error) {
	b, err := parseBdaddr(local)
	if err != nil {
		return nil, core.Wrap(core.ErrNameScoConfig, "Invalid adapter address", err)
	}
	fd, err := scoSocket()
	if err != nil {
		return nil, err
	}
	if err := scoSyscall(unix.SYS_BIND, fd, b); err != nil {
		unix.Close(fd)
		switch {
		case errors.Is(err, unix.EADDRINUSE):
			return nil, core.Wrap(core.ErrNameServiceConflict, "SCO socket in use by another process", err)
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
			return nil, core.Wrap(core.ErrNameScoConfig, "Permission denied binding SCO socket", err)
		}
		return nil, core.Wrap(core.ErrNameScoConfig, "Could not bind SCO socket", err)
	}
	if err := unix.Listen(fd, scoListenBacklog); err != nil {
		unix.Close(fd)
		return nil, core.Wrap(core.ErrNameScoConfig, "Could not listen on SCO socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, core.Wrap(core.ErrNameScoConfig, "Could not configure SCO socket", err)
	}

	l := &scoListener{file: os.NewFile(uintptr(fd), "sco-listen"), done: make(chan struct{})}
	go l.serve(accept)
	return l, nil
}

func (l *scoListener) serve(accept func(addr string, fd int)) {
	defer close(l.done)
	rc, err := l.file.SyscallConn()
	if err != nil {
		logger.Error("[bluetooth] SCO listener: %v", err)
		return
	}
	for {
		var nfd int
		var remote [6]byte
		var aerr error
		err := rc.Read(func(fd uintptr) bool {
			var sa sockaddrSCO
			size := uint32(unsafe.Sizeof(sa))
			n, _, errno := unix.Syscall6(unix.SYS_ACCEPT4, fd, uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&size)), unix.SOCK_CLOEXEC, 0, 0)
			if errno == unix.EAGAIN || errno == unix.EINTR {
				return false
			}
			if errno != 0 {
				aerr = errno
				return true
			}
			nfd, remote = int(n), sa.Bdaddr
			return true
		})
		if err != nil {
			logger.Debug("[bluetooth] SCO listener stopped: %v", err)
			return
		}
		if aerr != nil {
			logger.Warn("[bluetooth] SCO accept: %v", aerr)
			continue
		}
		accept(formatBdaddr(remote), nfd)
	}
}

func (l *scoListener) Close() error {
	err := l.file.Close()
	<-l.done
	return err
}

// dialSCO opens an audio connection to remote. It blocks until the link is
// up or refused.
func dialSCO(local, remote string) (int, error) {
	lb, err := parseBdaddr(local)
	if err != nil {
		return -1, err
	}
	rb, err := parseBdaddr(remote)
	if err != nil {
		return -1, err
	}
	fd, err := scoSocket()
	if err != nil {
		return -1, err
	}
	if err := scoSyscall(unix.SYS_BIND, fd, lb); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind SCO socket: %w", err)
	}
	if err := scoSyscall(unix.SYS_CONNECT, fd, rb); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("connect SCO to %s: %w", remote, err)
	}
	return fd, nil
}

// scoLink is an open SCO connection carrying 16 bit little endian samples.
// A receiver goroutine buffers incoming packets so reads never block.
type scoLink struct {
	file   *os.File
	onLost func(*scoLink, error)

	mu   sync.Mutex
	ring *soundio.Ring
	err  error

	closed atomic.Bool
	done   chan struct{}
}

func newSCOLink(fd int, onLost func(*scoLink, error)) (*scoLink, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	l := &scoLink{
		file:   os.NewFile(uintptr(fd), "sco"),
		onLost: onLost,
		ring:   soundio.NewRing(scoBufferSamples),
		done:   make(chan struct{}),
	}
	go l.receive()
	return l, nil
}

func (l *scoLink) receive() {
	defer close(l.done)
	buf := make([]byte, 512)
	samples := make([]int16, len(buf)/2)
	for {
		n, err := l.file.Read(buf)
		if err != nil {
			l.mu.Lock()
			l.err = err
			l.mu.Unlock()
			if !l.closed.Load() && l.onLost != nil {
				l.onLost(l, err)
			}
			return
		}
		count := decodeSamples(samples, buf[:n])
		l.mu.Lock()
		l.ring.Write(samples[:count])
		l.mu.Unlock()
	}
}

func (l *scoLink) Read(p []int16) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.ring.Read(p)
	if n == 0 && l.err != nil {
		return 0, l.err
	}
	return n, nil
}

// Write sends p and returns the samples the controller took. Packets that
// find the send queue full are dropped, so the count follows the link clock.
func (l *scoLink) Write(p []int16) (int, error) {
	if l.closed.Load() {
		return 0, os.ErrClosed
	}
	// unpollable sockets fail with EAGAIN instead
	_ = l.file.SetWriteDeadline(time.Now().Add(scoSendWait))
	buf := make([]byte, scoPacketBytes)
	sent := 0
	for sent < len(p) {
		n := encodeSamples(buf, p[sent:])
		if _, err := l.file.Write(buf[:2*n]); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, unix.EAGAIN) {
				return sent, nil
			}
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

func (l *scoLink) BufferSize() int { return l.ring.Cap() }

func (l *scoLink) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.file.Close()
	<-l.done
	return err
}

// decodeSamples converts little endian PCM bytes to samples and returns the
// sample count.
func decodeSamples(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return n
}

// encodeSamples fills dst with as many samples from src as fit and returns
// the count.
func encodeSamples(dst []byte, src []int16) int {
	n := min(len(dst)/2, len(src))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(src[i]))
	}
	return n
}

// remoteClosed reports errors meaning the gateway closed the link.
func remoteClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.ENOTCONN)
}
