package at

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every ParseError so callers can test for
// a parse failure with errors.Is.
var ErrMalformed = errors.New("malformed modem text")

// ParseError describes modem text that does not have the expected layout.
type ParseError struct {
	// What names the structure being parsed ("indication", "message").
	What string
	// Reason is a short description of the failed expectation.
	Reason string
	// Input is the raw text handed to the parser.
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s: %q", e.What, e.Reason, e.Input)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

// Indication is a parsed +CMTI new message indication.
type Indication struct {
	Storage string // memory name, e.g. "SM"
	Index   string // storage index as sent by the modem
}

// ParseIndication parses a `+CMTI: "<mem>",<index>` line. The index is the
// second comma-separated token and must be a non-empty run of digits, since
// it is interpolated into the retrieval command.
func ParseIndication(line string) (Indication, error) {
	tokens := strings.Split(line, ",")
	if len(tokens) < 2 {
		return Indication{}, &ParseError{What: "indication", Reason: "missing index field", Input: line}
	}

	index := strings.TrimSpace(tokens[1])
	if index == "" || strings.Trim(index, "0123456789") != "" {
		return Indication{}, &ParseError{What: "indication", Reason: "index is not numeric", Input: line}
	}

	storage := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokens[0]), UrcNewMsg))
	return Indication{
		Storage: strings.Trim(storage, `"`),
		Index:   index,
	}, nil
}

// ReadMessage is the sender and body recovered from an AT+CMGR reply.
type ReadMessage struct {
	Sender string
	Text   string
}

// ParseReadMessage extracts sender and body from a text mode AT+CMGR reply.
//
// The reply is split on LF. The second line is the header
//
//	+CMGR: "REC UNREAD","+15551234567",,"24/05/01,10:00:00+00"
//
// whose second comma-separated token, with quotes removed, is the sender.
// The third line is the body. This is the layout produced with echo off
// (the reply starts with an empty CRLF line); other layouts are reported
// as malformed rather than guessed at.
func ParseReadMessage(reply string) (ReadMessage, error) {
	lines := strings.Split(reply, "\n")
	if len(lines) < 3 {
		return ReadMessage{}, &ParseError{What: "message", Reason: fmt.Sprintf("expected at least 3 lines, got %d", len(lines)), Input: reply}
	}

	fields := strings.Split(lines[1], ",")
	if len(fields) < 2 {
		return ReadMessage{}, &ParseError{What: "message", Reason: "header has no sender field", Input: reply}
	}

	sender := strings.TrimSpace(strings.ReplaceAll(fields[1], `"`, ""))
	if sender == "" {
		return ReadMessage{}, &ParseError{What: "message", Reason: "empty sender", Input: reply}
	}

	return ReadMessage{
		Sender: sender,
		Text:   strings.TrimSpace(lines[2]),
	}, nil
}
