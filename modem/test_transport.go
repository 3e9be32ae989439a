package modem

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"i4.energy/across/aisms/at"
)

// TestTransport is a scripted in-memory Transport.
//
// Reads never block: with nothing queued they return (0, nil), the way a
// serial port with a read timeout does. Queued chunks larger than the read
// buffer are handed out over several reads. Every write is recorded and,
// when a responder is installed, may queue a reply.
type TestTransport struct {
	mu        sync.Mutex
	chunks    [][]byte
	writes    []string
	responder func(written string) []string
	closed    bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{}
}

// OnWrite installs fn to produce the modem output for each write.
func (t *TestTransport) OnWrite(fn func(written string) []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	written := string(p)
	t.writes = append(t.writes, written)
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		t.Feed(responder(written)...)
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	if len(t.chunks) == 0 {
		return 0, nil
	}
	n = copy(p, t.chunks[0])
	if n < len(t.chunks[0]) {
		t.chunks[0] = t.chunks[0][n:]
	} else {
		t.chunks = t.chunks[1:]
	}
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Feed queues data to be read by the transport. Each chunk is returned by
// a separate read, which simulates data arriving in pieces.
func (t *TestTransport) Feed(chunks ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, c := range chunks {
		if c != "" {
			t.chunks = append(t.chunks, []byte(c))
		}
	}
}

// Writes returns a copy of everything written so far, one entry per write.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// ReadReply renders the echo-off text mode reply to AT+CMGR for a stored
// message.
func ReadReply(sender, text string) string {
	return fmt.Sprintf("\r\n+CMGR: \"REC UNREAD\",\"%s\",,\"24/05/01,10:00:00+00\"\r\n%s\r\n\r\nOK\r\n", sender, text)
}

// Simulator is a TestTransport answering like a provisioned modem with echo
// disabled. Messages placed with Receive can be read back with AT+CMGR;
// bodies submitted through AT+CMGS are collected in Sent.
type Simulator struct {
	*TestTransport

	mu     sync.Mutex
	stored map[string]string
	sent   []string
	fail   map[string]string
}

// NewSimulator returns a Simulator with empty storage.
func NewSimulator() *Simulator {
	s := &Simulator{
		TestTransport: NewTestTransport(),
		stored:        map[string]string{},
		fail:          map[string]string{},
	}
	s.OnWrite(s.respond)
	return s
}

// Receive stores a message at index and raises the matching +CMTI.
func (s *Simulator) Receive(index, sender, text string) {
	s.mu.Lock()
	s.stored[index] = ReadReply(sender, text)
	s.mu.Unlock()
	s.Feed(fmt.Sprintf("\r\n+CMTI: \"SM\",%s\r\n", index))
}

// Store places a raw AT+CMGR reply at index without raising a notification.
func (s *Simulator) Store(index, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[index] = reply
}

// FailOn makes any write starting with prefix answer reply instead of the
// usual result.
func (s *Simulator) FailOn(prefix, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[prefix] = reply
}

// Sent returns the message bodies submitted so far, without Ctrl+Z.
func (s *Simulator) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *Simulator) respond(written string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for prefix, reply := range s.fail {
		if strings.HasPrefix(written, prefix) {
			return []string{reply}
		}
	}

	const ok = "\r\nOK\r\n"
	cmd := strings.TrimSuffix(written, at.CR)

	switch {
	case strings.HasSuffix(written, at.CtrlZ):
		s.sent = append(s.sent, strings.TrimSuffix(written, at.CtrlZ))
		return []string{"\r\n+CMGS: 7\r\n", ok}

	case written == at.Escape:
		return nil

	case cmd == at.CmdSimStatus:
		return []string{"\r\n+CPIN: READY\r\n" + ok}

	case strings.HasPrefix(cmd, "AT+CMGS="):
		return []string{"\r\n" + at.Prompt}

	case strings.HasPrefix(cmd, "AT+CMGR="):
		index := strings.TrimPrefix(cmd, "AT+CMGR=")
		if reply, found := s.stored[index]; found {
			return []string{reply}
		}
		return []string{"\r\n+CMS ERROR: invalid memory index\r\n"}

	case strings.HasPrefix(cmd, "AT+CMGD="):
		delete(s.stored, strings.TrimPrefix(cmd, "AT+CMGD="))
		return []string{ok}

	case cmd == at.CmdAt, cmd == at.CmdEchoOff, cmd == at.CmdVerboseErrors,
		cmd == at.CmdSetTextMode, cmd == at.CmdCharsetGSM, cmd == at.CmdNotifyNewMsg:
		return []string{ok}
	}

	return []string{"\r\nERROR\r\n"}
}
