package bluetooth

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
)

const testAddr = "01:23:45:67:89:AB"

// fakeHandler records radio events as strings.
type fakeHandler struct {
	accept bool
	events chan string

	mu    sync.Mutex
	links []hfp.AudioLink
	errs  []error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{accept: true, events: make(chan string, 64)}
}

func (h *fakeHandler) AcceptIncoming(addr string) bool {
	h.events <- "accept " + addr
	return h.accept
}

func (h *fakeHandler) Connected(addr string, info hfp.SLCInfo) {
	h.events <- fmt.Sprintf("connected %s %d", addr, info.Features)
}

func (h *fakeHandler) Disconnected(addr string, err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.events <- "disconnected " + addr
}

func (h *fakeHandler) Discovered(addr string, class uint32) {
	h.events <- fmt.Sprintf("discovered %s %06x", addr, class)
}

func (h *fakeHandler) InquiryDone() { h.events <- "inquiry done" }

func (h *fakeHandler) Indicator(addr, name string, value int) {
	h.events <- fmt.Sprintf("indicator %s %s=%d", addr, name, value)
}

func (h *fakeHandler) Ring(addr, callerID string) {
	h.events <- fmt.Sprintf("ring %s %q", addr, callerID)
}

func (h *fakeHandler) AudioConnecting(addr string) { h.events <- "audio connecting " + addr }

func (h *fakeHandler) AudioConnected(addr string, link hfp.AudioLink) {
	h.mu.Lock()
	h.links = append(h.links, link)
	h.mu.Unlock()
	h.events <- "audio connected " + addr
}

func (h *fakeHandler) AudioDisconnected(addr string, err error) {
	h.events <- "audio disconnected " + addr
}

func (h *fakeHandler) Stopped(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.events <- "stopped"
}

func waitEvent(t *testing.T, h *fakeHandler, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-h.events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

func noEvent(t *testing.T, h *fakeHandler) {
	t.Helper()
	select {
	case got := <-h.events:
		t.Errorf("unexpected event %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeGateway answers AT commands on one end of a pipe with canned replies.
// Unknown commands get ERROR, commands mapped to nil get no answer.
type fakeGateway struct {
	conn     net.Conn
	replies  map[string][]string
	commands chan string
}

func newFakeGateway(conn net.Conn, replies map[string][]string) *fakeGateway {
	g := &fakeGateway{conn: conn, replies: replies, commands: make(chan string, 32)}
	go g.serve()
	return g
}

func (g *fakeGateway) serve() {
	scanner := bufio.NewScanner(g.conn)
	scanner.Split(scanATLines)
	for scanner.Scan() {
		cmd := scanner.Text()
		g.commands <- cmd
		lines, ok := g.replies[cmd]
		if !ok {
			lines = []string{"ERROR"}
		}
		for _, line := range lines {
			if err := g.send(line); err != nil {
				return
			}
		}
	}
}

func (g *fakeGateway) send(line string) error {
	_, err := g.conn.Write([]byte("\r\n" + line + "\r\n"))
	return err
}

// slcReplies is a gateway supporting three way calling and caller id.
func slcReplies() map[string][]string {
	return map[string][]string{
		"AT+BRSF=38":      {"+BRSF: 871", "OK"},
		"AT+CIND=?":       {`+CIND: ("service",(0,1)),("call",(0,1)),("callsetup",(0-3)),("callheld",(0-2)),("signal",(0-5)),("roam",(0,1)),("battchg",(0-5))`, "OK"},
		"AT+CIND?":        {"+CIND: 1,0,0,0,4,0,3", "OK"},
		"AT+CMER=3,0,0,1": {"OK"},
		"AT+CHLD=?":       {"+CHLD: (0,1,2,3,4)", "OK"},
		"AT+CLIP=1":       {"OK"},
	}
}

// newTestSession runs a session against a fake gateway.
func newTestSession(t *testing.T, replies map[string][]string, timeout time.Duration) (*session, *fakeGateway, *fakeHandler) {
	t.Helper()
	local, remote := net.Pipe()
	h := newFakeHandler()
	s := newSession(testAddr, local, h, timeout, func(s *session, err error) {
		if s.reportsLoss() {
			s.h.Disconnected(s.addr, err)
		}
	})
	g := newFakeGateway(remote, replies)
	go s.run()
	t.Cleanup(func() {
		s.close()
		remote.Close()
	})
	return s, g, h
}
