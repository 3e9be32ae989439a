package modem

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/aisms/at"
)

// SMS represents a text message retrieved from modem storage.
type SMS struct {
	Index   string // storage index from +CMTI
	Storage string // memory name, e.g. "SM"
	Sender  string // originating address
	Text    string // message body
}

// sendRequest is a SendSMS call waiting to be served by Run.
type sendRequest struct {
	recipient string
	message   string
	result    chan error
}

// SendSMS sends a text message to recipient and waits for the outcome.
//
// The dialogue runs on the goroutine executing Run, so SendSMS blocks until
// Run picks the request up and finishes it. Requests are served in the
// order they were posted. Failures wrap ErrSendFailed.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}

	req := &sendRequest{
		recipient: recipient,
		message:   message,
		result:    make(chan error, 1),
	}

	select {
	case m.outbox <- req:
	case <-ctx.Done():
		return fmt.Errorf("send cancelled before dispatch: %w", ctx.Err())
	case <-m.loopCtx.Done():
		return ErrAlreadyClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send cancelled: %w", ctx.Err())
	case <-m.loopCtx.Done():
		return ErrAlreadyClosed
	}
}

// send performs the text mode dialogue for one message:
//
//  1. AT, answered with OK
//  2. AT+CMGF=1, answered with OK
//  3. AT+CSCS="GSM", answered with OK
//  4. AT+CMGS="<to>", answered with the ">" prompt
//  5. the body and Ctrl+Z, answered with OK within the send timeout
//
// Output that arrived before the dialogue is moved to the pending buffer
// first so a notification is not mistaken for part of a reply.
func (m *Modem) send(recipient, message string) error {
	logger := m.logger.With("to", recipient)

	if data, err := m.readAvailable(); len(data) > 0 || err != nil {
		m.pending = append(m.pending, data...)
		if err != nil {
			logger.Warn("Failed to drain modem before send", "error", err)
		}
	}

	for _, cmd := range []string{at.CmdAt, at.CmdSetTextMode, at.CmdCharsetGSM} {
		if err := m.expectOK(cmd); err != nil {
			logger.Error("Failed to send SMS", "step", cmd, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrSendFailed, cmd, err)
		}
	}

	prompt := strings.TrimSpace(at.Prompt)
	cmd := fmt.Sprintf(at.CmdSendMsg, recipient)
	if _, err := m.Command(cmd, prompt, m.config.atTimeout); err != nil {
		m.abortMessageInput()
		logger.Error("Failed to send SMS", "step", cmd, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, cmd, err)
	}

	resp, err := m.Exec([]byte(message+at.CtrlZ), at.OK, m.config.sendTimeout)
	if err != nil {
		m.abortMessageInput()
		logger.Error("Failed to send SMS", "step", "message body", "error", err)
		return fmt.Errorf("%w: message body: %w", ErrSendFailed, err)
	}

	logger.Info("SMS sent", "length", len(message), "response", strings.Join(at.Lines(resp), " "))
	return nil
}

// abortMessageInput leaves the modem's text entry mode in case the prompt
// was opened. Harmless when it was not.
func (m *Modem) abortMessageInput() {
	if _, err := m.transport.Write([]byte(at.Escape)); err != nil {
		m.logger.Warn("Failed to cancel message input", "error", err)
	}
}
