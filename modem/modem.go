package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"i4.energy/across/aisms/at"
)

const (
	// readBufferSize is the size of a single transport read.
	readBufferSize = 512
	// maxPendingBytes caps unsolicited output buffered without a line
	// ending, and a single drain of the transport.
	maxPendingBytes = 16 * 1024
)

// Modem represents a GSM modem that communicates via AT commands over a
// half-duplex Transport.
//
// All transport I/O happens on one goroutine: the caller of New during
// provisioning, then the goroutine running Run. Other goroutines reach the
// transport only through SendSMS, which hands the work to Run.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	closed  atomic.Bool
	running atomic.Bool

	// pending holds unsolicited output not yet scanned for notifications,
	// including +CMTI lines recovered from command replies. Owned by the
	// loop goroutine.
	pending []byte

	// outbox carries send requests from SendSMS to Run.
	outbox chan *sendRequest

	// loopCtx is cancelled by Close to stop Run and release SendSMS callers.
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// PollConfig defines configuration for polling operations like waiting for SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

// New dials the transport and provisions the modem for text mode SMS with
// new message indications. The returned Modem is ready for Run.
//
// Returns an error if the transport connection or modem initialization
// fails; the transport is closed in the latter case.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
		outbox:    make(chan *sendRequest),
	}
	m.loopCtx, m.loopCancel = context.WithCancel(context.Background())

	initCtx, cancel := context.WithTimeout(ctx, config.initTimeout)
	defer cancel()

	if err := m.init(initCtx); err != nil {
		m.loopCancel()
		transport.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// Close stops Run, releases waiting SendSMS callers and closes the
// transport. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	m.loopCancel()
	return m.transport.Close()
}

// init performs the provisioning sequence: wake-up, echo off, verbose
// errors, SIM unlock, text mode and +CMTI routing.
func (m *Modem) init(ctx context.Context) error {
	if err := m.expectOK(at.CmdAt); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if err := m.expectOK(at.CmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	if err := m.expectOK(at.CmdVerboseErrors); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}

	simStatus, err := m.Command(at.CmdSimStatus, at.OK, m.config.atTimeout)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch {
	case strings.Contains(simStatus, at.SimReady):

	case strings.Contains(simStatus, at.SimPin):
		if m.config.simPIN == "" {
			return ErrSIMPinRequired
		}
		if err := m.expectOK(fmt.Sprintf(at.CmdEnterPIN, m.config.simPIN)); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		if err := m.waitForSIMReady(ctx, m.config.simPoll); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported SIM state: %q", simStatus)
	}

	if err := m.expectOK(at.CmdSetTextMode); err != nil {
		return fmt.Errorf("set SMS text mode: %w", err)
	}

	if err := m.expectOK(at.CmdNotifyNewMsg); err != nil {
		return fmt.Errorf("enable new message indications: %w", err)
	}

	m.logger.Info("Modem initialized")
	return nil
}

// Exec is the command/response engine. It writes command as is, then reads
// whatever the transport has available, appending to an accumulator, until
// terminator appears anywhere in the accumulated bytes. The search always
// covers the whole accumulator, so a terminator split across reads and
// echo around it are both tolerated.
//
// Exec fails with a *TimeoutError (ErrProtocolTimeout) once timeout has
// elapsed without the terminator, and with ErrCommandFailed when a complete
// final error line arrives first. The accumulated bytes are returned in all
// cases.
//
// Exec must only be called from the goroutine that owns the transport.
func (m *Modem) Exec(command []byte, terminator string, timeout time.Duration) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrAlreadyClosed
	}

	label := commandLabel(command)
	if _, err := m.transport.Write(command); err != nil {
		return nil, fmt.Errorf("write command %q: %w", label, err)
	}

	var acc []byte
	buf := make([]byte, readBufferSize)
	term := []byte(terminator)
	start := time.Now()
	open := m.indicationOpen()

	for {
		n, err := m.transport.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			m.logger.Debug("Modem data received", "command", label, "data", string(buf[:n]))

			if open {
				acc, open = m.completeIndication(acc)
			}
			if bytes.Contains(acc, term) {
				m.stashIndications(acc, "")
				return acc, nil
			}
			if line, failed := at.FinalError(acc); failed {
				m.stashIndications(acc, "")
				return acc, fmt.Errorf("%w: %s answered %q", ErrCommandFailed, label, line)
			}
		}
		if err != nil {
			return acc, fmt.Errorf("read response to %q: %w", label, err)
		}

		if elapsed := time.Since(start); elapsed >= timeout {
			m.stashIndications(acc, "")
			return acc, &TimeoutError{Command: label, Terminator: terminator, Elapsed: elapsed, Received: acc}
		}

		if n == 0 {
			time.Sleep(m.config.idleInterval)
		}
	}
}

// Command sends a single AT command line, terminated by a carriage return,
// and waits for terminator.
func (m *Modem) Command(cmd, terminator string, timeout time.Duration) (string, error) {
	resp, err := m.Exec([]byte(strings.TrimSpace(cmd)+at.CR), terminator, timeout)
	return string(resp), err
}

// expectOK runs cmd with the default AT timeout and waits for OK.
func (m *Modem) expectOK(cmd string) error {
	_, err := m.Command(cmd, at.OK, m.config.atTimeout)
	return err
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational.
func (m *Modem) waitForSIMReady(ctx context.Context, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("SIM not ready: %w", ctx.Err())
		case <-ticker.C:
			retries++
			if retries > maxRetries {
				return fmt.Errorf("SIM not ready after %d retries", maxRetries)
			}
			resp, err := m.Command(at.CmdSimStatus, at.OK, m.config.atTimeout)
			if err != nil {
				if errors.Is(err, ErrAlreadyClosed) {
					return fmt.Errorf("SIM status check failed: %w", err)
				}
				continue
			}
			if strings.Contains(resp, at.SimReady) {
				return nil
			}
		}
	}
}

// readAvailable drains what the transport has buffered right now. It stops
// at the first empty read, on error, or after maxPendingBytes.
func (m *Modem) readAvailable() ([]byte, error) {
	var out []byte
	buf := make([]byte, readBufferSize)
	for len(out) < maxPendingBytes {
		n, err := m.transport.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// stashIndications queues any complete +CMTI lines found in data for the
// notification watcher. A line equal to skip is ignored; it is used to
// keep a message body that happens to look like a URC from being treated
// as one. An unterminated trailing +CMTI fragment is queued as is and
// completed by whatever the modem sends next.
func (m *Modem) stashIndications(data []byte, skip string) {
	for len(data) > 0 {
		// Only complete lines: a truncated index must not be acted on.
		advance, token, _ := at.Splitter(data, false)
		if advance == 0 {
			if partialIndication(data) {
				m.logger.Debug("Partial notification at end of command reply", "data", string(data))
				m.pending = append(m.pending, data...)
			}
			return
		}
		data = data[advance:]

		line := strings.TrimSpace(string(token))
		if line == skip || !at.IsNewMessageIndication(line) {
			continue
		}
		m.logger.Debug("Notification interleaved with command reply", "line", line)
		m.pending = append(m.pending, line+at.CRLF...)
	}
}

// indicationOpen reports whether the pending buffer ends inside what may
// be a +CMTI line.
func (m *Modem) indicationOpen() bool {
	tail := m.pending
	if i := bytes.LastIndex(tail, []byte(at.CRLF)); i >= 0 {
		tail = tail[i+len(at.CRLF):]
	}
	return partialIndication(tail)
}

// completeIndication moves the start of data, up to and including the
// first line ending, to the pending buffer where it finishes the open
// +CMTI line. It returns the rest of data and whether the line is still
// open.
func (m *Modem) completeIndication(data []byte) ([]byte, bool) {
	end := -1
	if bytes.HasSuffix(m.pending, []byte(at.CR)) && bytes.HasPrefix(data, []byte("\n")) {
		end = 1
	} else if i := bytes.Index(data, []byte(at.CRLF)); i >= 0 {
		end = i + len(at.CRLF)
	}
	if end < 0 {
		return data, true
	}
	m.pending = append(m.pending, data[:end]...)
	return data[end:], false
}

// partialIndication reports whether an unterminated fragment could be the
// start of a +CMTI line.
func partialIndication(fragment []byte) bool {
	s := strings.TrimLeft(string(fragment), " \r\n")
	if s == "" {
		return false
	}
	if len(s) < len(at.UrcNewMsg) {
		return strings.HasPrefix(at.UrcNewMsg, s)
	}
	return strings.HasPrefix(s, at.UrcNewMsg)
}

// commandLabel renders command for logs and errors without its control
// characters.
func commandLabel(command []byte) string {
	return strings.TrimRight(string(command), at.CR+at.CtrlZ)
}
