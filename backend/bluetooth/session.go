package bluetooth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/logger"
)

// atCommand is a command line waiting for its final result code. Responses
// starting with prefix are routed to handle while it is in flight.
type atCommand struct {
	line   string
	prefix string
	handle func(args string)
	done   func(error)
	timer  *time.Timer
}

// session is the service level connection with one audio gateway, an AT
// command channel over RFCOMM. Commands are sent one at a time.
type session struct {
	addr    string
	rw      io.ReadWriteCloser
	h       hfp.RadioHandler
	timeout time.Duration
	onClose func(s *session, err error)

	mu       sync.Mutex
	queue    []*atCommand
	inflight *atCommand
	names    []string
	info     hfp.SLCInfo
	clip     bool
	ready    bool
	closing  bool
	ended    bool
	closed   chan struct{}
	audio    *scoLink
	dialing  bool
}

func newSession(addr string, rw io.ReadWriteCloser, h hfp.RadioHandler, timeout time.Duration, onClose func(*session, error)) *session {
	return &session{
		addr:    addr,
		rw:      rw,
		h:       h,
		timeout: timeout,
		onClose: onClose,
		closed:  make(chan struct{}),
	}
}

// run reads lines until the connection ends.
func (s *session) run() {
	scanner := bufio.NewScanner(s.rw)
	scanner.Split(scanATLines)
	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.terminate(err)
}

func (s *session) handleLine(line string) {
	logger.Debug("[bluetooth] %s > %s", s.addr, line)
	if final, failed := isFinalResult(line); final {
		var err error
		if failed {
			err = hfp.ErrRejected
		}
		s.complete(err)
		return
	}

	name, args := splitResponse(line)
	s.mu.Lock()
	cmd := s.inflight
	s.mu.Unlock()
	if cmd != nil && cmd.prefix != "" && cmd.prefix == name {
		if cmd.handle != nil {
			cmd.handle(args)
		}
		return
	}
	s.unsolicited(name, args)
}

func (s *session) unsolicited(name, args string) {
	s.mu.Lock()
	ready, clip, names := s.ready, s.clip, s.names
	s.mu.Unlock()

	switch name {
	case "RING":
		if ready && !clip {
			s.h.Ring(s.addr, "")
		}
	case "+CLIP":
		if ready {
			s.h.Ring(s.addr, parseCLIP(args))
		}
	case "+CIEV":
		index, value, ok := parseCIEV(args)
		if !ok || index > len(names) {
			logger.Debug("[bluetooth] %s: bad indicator report %q", s.addr, args)
			return
		}
		if ready {
			s.h.Indicator(s.addr, names[index-1], value)
		}
	default:
		logger.Debug("[bluetooth] %s: ignoring %s", s.addr, name)
	}
}

// send queues a command. done is called exactly once.
func (s *session) send(line, prefix string, handle func(string), done func(error)) {
	cmd := &atCommand{line: line, prefix: prefix, handle: handle, done: done}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		cmd.finish(hfp.ErrDisconnected)
		return
	}
	s.queue = append(s.queue, cmd)
	failed := s.next()
	s.mu.Unlock()
	failed.finish(hfp.ErrDisconnected)
}

// next writes the head of the queue when nothing is in flight. It returns
// a command that could not be written. Called with mu held.
func (s *session) next() *atCommand {
	if s.inflight != nil || len(s.queue) == 0 {
		return nil
	}
	cmd := s.queue[0]
	s.queue = s.queue[1:]
	logger.Debug("[bluetooth] %s < %s", s.addr, cmd.line)
	if _, err := io.WriteString(s.rw, cmd.line+"\r"); err != nil {
		logger.Warn("[bluetooth] %s: write failed: %v", s.addr, err)
		return cmd
	}
	s.inflight = cmd
	cmd.timer = time.AfterFunc(s.timeout, func() { s.expire(cmd) })
	return nil
}

func (s *session) complete(err error) {
	s.mu.Lock()
	cmd := s.inflight
	s.inflight = nil
	if cmd != nil {
		cmd.timer.Stop()
	}
	failed := s.next()
	s.mu.Unlock()

	if cmd == nil {
		logger.Debug("[bluetooth] %s: unexpected result code", s.addr)
	}
	cmd.finish(err)
	failed.finish(hfp.ErrDisconnected)
}

func (s *session) expire(cmd *atCommand) {
	s.mu.Lock()
	if s.inflight != cmd {
		s.mu.Unlock()
		return
	}
	s.inflight = nil
	failed := s.next()
	s.mu.Unlock()

	logger.Warn("[bluetooth] %s: %s timed out", s.addr, cmd.line)
	cmd.finish(hfp.ErrTimeout)
	failed.finish(hfp.ErrDisconnected)
}

func (c *atCommand) finish(err error) {
	if c != nil && c.done != nil {
		c.done(err)
	}
}

// call sends a command and waits for its result.
func (s *session) call(line, prefix string, handle func(string)) error {
	result := make(chan error, 1)
	s.send(line, prefix, handle, func(err error) { result <- err })
	select {
	case err := <-result:
		return err
	case <-s.closed:
		return hfp.ErrDisconnected
	}
}

// establish runs the service level connection setup: feature exchange,
// indicator discovery, event reporting and caller id.
func (s *session) establish(caps uint32) (hfp.SLCInfo, error) {
	var info hfp.SLCInfo
	brsf := "AT+BRSF=" + strconv.FormatUint(uint64(brsfCapabilities(caps)), 10)
	if err := s.call(brsf, "+BRSF", func(args string) {
		if f, err := parseBRSF(args); err == nil {
			info.Features = f
		}
	}); err != nil {
		return info, fmt.Errorf("feature exchange: %w", err)
	}

	var names []string
	if err := s.call("AT+CIND=?", "+CIND", func(args string) {
		names = parseIndicatorNames(args)
	}); err != nil {
		return info, fmt.Errorf("indicator list: %w", err)
	}
	var values []int
	if err := s.call("AT+CIND?", "+CIND", func(args string) {
		values, _ = parseIntList(args)
	}); err != nil {
		return info, fmt.Errorf("indicator status: %w", err)
	}
	info.Indicators = mapIndicators(names, values)
	s.mu.Lock()
	s.names = names
	s.mu.Unlock()

	if err := s.call("AT+CMER=3,0,0,1", "", nil); err != nil {
		return info, fmt.Errorf("event reporting: %w", err)
	}
	if info.Features&hfp.FeatThreeWayCalling != 0 && caps&hfp.CapThreeWayCalling != 0 {
		if err := s.call("AT+CHLD=?", "+CHLD", nil); err != nil {
			return info, fmt.Errorf("call hold modes: %w", err)
		}
	}

	if caps&hfp.CapCLIP != 0 {
		if err := s.call("AT+CLIP=1", "", nil); err != nil {
			logger.Info("[bluetooth] %s: caller id not available: %v", s.addr, err)
		} else {
			s.mu.Lock()
			s.clip = true
			s.mu.Unlock()
		}
	}
	return info, nil
}

func (s *session) setReady(info hfp.SLCInfo) {
	s.mu.Lock()
	s.info = info
	s.ready = true
	s.mu.Unlock()
}

func (s *session) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.ended
}

// close ends the connection without reporting a disconnection.
func (s *session) close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.terminate(os.ErrClosed)
}

// terminate fails queued commands and releases the connection once.
func (s *session) terminate(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	pending := s.queue
	if s.inflight != nil {
		s.inflight.timer.Stop()
		pending = append([]*atCommand{s.inflight}, pending...)
	}
	s.inflight = nil
	s.queue = nil
	link := s.audio
	s.audio = nil
	close(s.closed)
	s.mu.Unlock()

	if cerr := s.rw.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		logger.Debug("[bluetooth] %s: close: %v", s.addr, cerr)
	}
	if link != nil {
		_ = link.Close()
	}
	for _, cmd := range pending {
		cmd.finish(hfp.ErrDisconnected)
	}
	if s.onClose != nil {
		s.onClose(s, err)
	}
}

// reportsLoss reports whether the end of the session must be signalled
// to the handler.
func (s *session) reportsLoss() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closing
}

func (s *session) slcInfo() hfp.SLCInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// beginAudio marks an outgoing audio connection in progress. It returns
// false when one is open or already being set up.
func (s *session) beginAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil && s.audio.closed.Load() {
		s.audio = nil
	}
	if s.ended || s.audio != nil || s.dialing {
		return false
	}
	s.dialing = true
	return true
}

// endDial completes an outgoing audio connection. It returns false when the
// attempt was cancelled meanwhile, in which case link is not attached.
func (s *session) endDial(link *scoLink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := s.dialing && !s.ended
	s.dialing = false
	if !wanted || link == nil {
		return wanted
	}
	if s.audio != nil {
		return false
	}
	s.audio = link
	return true
}

// attachAudio adopts an audio connection opened by the gateway.
func (s *session) attachAudio(link *scoLink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil && s.audio.closed.Load() {
		s.audio = nil
	}
	if s.ended || s.audio != nil {
		return false
	}
	s.audio = link
	s.dialing = false
	return true
}

// detachAudio forgets link if it is the current audio connection.
func (s *session) detachAudio(link *scoLink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != link {
		return false
	}
	s.audio = nil
	return true
}

// takeAudio cancels any audio setup and returns the open connection.
func (s *session) takeAudio() *scoLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.audio
	s.audio = nil
	s.dialing = false
	return link
}
