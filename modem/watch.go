package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/aisms/at"
)

// Run is the gateway's main loop and the only goroutine that touches the
// transport once provisioning is done. Every poll interval it drains the
// transport and acts on new message indications; between polls it serves
// send requests posted by SendSMS, one at a time and in arrival order.
//
// Each retrieved message is passed to deliver, which must not block.
// Parse and I/O failures are logged and never end the loop. Run returns
// when ctx is cancelled or the Modem is closed.
func (m *Modem) Run(ctx context.Context, deliver func(SMS)) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.loopCtx, cancel)
	defer stop()

	ticker := time.NewTicker(m.config.pollInterval)
	defer ticker.Stop()

	m.logger.Info("Listening for incoming messages", "poll_interval", m.config.pollInterval)

	for {
		select {
		case <-ctx.Done():
			if m.closed.Load() {
				return ErrAlreadyClosed
			}
			return ctx.Err()

		case req := <-m.outbox:
			req.result <- m.send(req.recipient, req.message)

		case <-ticker.C:
			m.poll(deliver)
		}
	}
}

// poll drains unsolicited output into the pending buffer and processes
// every complete line in it.
func (m *Modem) poll(deliver func(SMS)) {
	data, err := m.readAvailable()
	if len(data) > 0 {
		m.logger.Debug("Unsolicited data received", "data", string(data))
		m.pending = append(m.pending, data...)
	}
	if err != nil {
		m.logger.Error("Failed to read from modem", "error", err)
	}
	m.processPending(deliver)
}

// processPending consumes complete lines from the pending buffer. An
// incomplete trailing line stays buffered until the rest arrives.
func (m *Modem) processPending(deliver func(SMS)) {
	for len(m.pending) > 0 {
		advance, token, _ := at.Splitter(m.pending, false)
		if advance == 0 {
			break
		}
		line := strings.TrimSpace(string(token))
		m.pending = m.pending[advance:]

		if line == "" {
			continue
		}
		if !at.IsNewMessageIndication(line) {
			m.logger.Debug("Ignoring modem output", "line", line)
			continue
		}
		m.handleIndication(line, deliver)
	}

	switch {
	case len(m.pending) == 0:
		m.pending = nil
	case len(m.pending) > maxPendingBytes:
		m.logger.Warn("Discarding unterminated modem output", "error", ErrLineTooLong, "bytes", len(m.pending))
		m.pending = nil
	}
}

// handleIndication retrieves and parses the message a +CMTI line points
// at. Failures drop this one notification.
func (m *Modem) handleIndication(line string, deliver func(SMS)) {
	ind, err := at.ParseIndication(line)
	if err != nil {
		m.logger.Error("Dropping malformed notification", "error", err)
		return
	}

	logger := m.logger.With("storage", ind.Storage, "index", ind.Index)
	logger.Info("New message notification")

	reply, err := m.retrieve(ind.Index)
	if err != nil {
		logger.Error("Failed to read message", "error", err, "raw", string(reply))
		return
	}

	msg, err := at.ParseReadMessage(string(reply))
	if err != nil {
		logger.Error("Failed to parse incoming message", "error", err)
		m.stashIndications(reply, "")
		return
	}
	m.stashIndications(reply, msg.Text)

	if m.config.deleteAfterRead {
		if err := m.expectOK(fmt.Sprintf(at.CmdDeleteMsg, ind.Index)); err != nil {
			logger.Warn("Failed to delete message from storage", "error", err)
		}
	}

	sms := SMS{
		Index:   ind.Index,
		Storage: ind.Storage,
		Sender:  msg.Sender,
		Text:    msg.Text,
	}
	logger.Info("Queued message", "sender", sms.Sender, "length", len(sms.Text))
	deliver(sms)
}

// retrieve issues AT+CMGR and reads the reply after the settle delay. The
// reply is the payload itself, so there is no terminator to wait for.
func (m *Modem) retrieve(index string) ([]byte, error) {
	cmd := fmt.Sprintf(at.CmdReadMsg, index)
	if _, err := m.transport.Write([]byte(cmd + at.CR)); err != nil {
		return nil, fmt.Errorf("write command %q: %w", cmd, err)
	}

	time.Sleep(m.config.settleDelay)

	reply, err := m.readAvailable()
	if m.indicationOpen() {
		reply, _ = m.completeIndication(reply)
	}
	m.logger.Debug("Message read response", "command", cmd, "data", string(reply))
	if err != nil {
		return reply, fmt.Errorf("read response to %q: %w", cmd, err)
	}
	return reply, nil
}
