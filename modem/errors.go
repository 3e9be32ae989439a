package modem

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer hands back no Transport.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned by operations on a Modem that has been
	// closed, including a second call to Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrLineTooLong is reported when unsolicited modem output grows past
	// the pending buffer limit without a line ending. The buffer is dropped.
	ErrLineTooLong = errors.New("response line too long")

	// ErrLoopRunning is returned when Run is called while another Run is
	// still active on the same Modem.
	ErrLoopRunning = errors.New("modem loop already running")

	// ErrProtocolTimeout is the ProtocolTimeout failure: the expected
	// terminator did not appear in the accumulated response in time.
	// It is wrapped by *TimeoutError.
	ErrProtocolTimeout = errors.New("protocol timeout")

	// ErrCommandFailed is returned when the modem answers a command with a
	// final error result (ERROR, +CME ERROR, +CMS ERROR) before the
	// expected terminator.
	ErrCommandFailed = errors.New("modem rejected command")

	// ErrSendFailed wraps any failure during the outbound SMS dialogue.
	// The chunk being sent is abandoned; nothing is retried.
	ErrSendFailed = errors.New("send SMS failed")
)

// TimeoutError carries the context of a command exchange that ran out of
// time. Received holds every byte read during the exchange.
type TimeoutError struct {
	Command    string
	Terminator string
	Elapsed    time.Duration
	Received   []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %q not seen after %s within %s (received %q)",
		ErrProtocolTimeout, e.Terminator, e.Command, e.Elapsed.Round(time.Millisecond), e.Received)
}

func (e *TimeoutError) Unwrap() error {
	return ErrProtocolTimeout
}
