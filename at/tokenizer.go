package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner,
// or called by hand on an accumulating buffer.
//
// It splits the input by CRLF line endings and also
// recognizes the SMS input prompt ("> ").
//
// When atEOF is false an incomplete trailing line is left in data and
// (0, nil, nil) is returned, which is how the notification watcher keeps a
// URC that arrived split across two reads.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Lines tokenizes a complete response with Splitter and returns the
// non-empty lines with surrounding whitespace removed. The prompt token is
// returned untouched.
func Lines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Split(Splitter)
	for scanner.Scan() {
		token := scanner.Text()
		if token != Prompt {
			token = strings.TrimSpace(token)
		}
		if token != "" {
			lines = append(lines, token)
		}
	}
	return lines
}

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}

// IsNewMessageIndication reports whether line is a +CMTI URC.
func IsNewMessageIndication(line string) bool {
	return Classify(line) == TypeURC && strings.HasPrefix(line, UrcNewMsg)
}

// FinalError returns the first final result code in data that is not OK,
// if any. Only complete lines are considered, so a body echo containing the
// word ERROR does not count.
func FinalError(data []byte) (string, bool) {
	for len(data) > 0 {
		advance, token, _ := Splitter(data, false)
		if advance == 0 {
			break
		}
		data = data[advance:]
		line := strings.TrimSpace(string(token))
		if line != OK && Classify(line) == TypeFinal {
			return line, true
		}
	}
	return "", false
}
