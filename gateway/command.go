package gateway

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Command is a slash command recognized in an incoming SMS.
type Command int

const (
	NoCommand Command = iota
	HelpCommand
	ClearCommand
	SystemCommand
)

const helpText = `Welcome to ai-sms!
"/clear" - Clear the conversation history
"/system <message>" - Send a system message
"/help" - Show this help message`

// ParseCommand matches body, case-insensitively and ignoring surrounding
// whitespace, against /help, /clear and /system <text>. For /system the
// trimmed text follows as arg. Anything else, including unknown slash
// commands, is NoCommand and goes to the assistant.
func ParseCommand(body string) (cmd Command, arg string) {
	body = strings.TrimSpace(body)
	lower := strings.ToLower(body)

	switch lower {
	case "/help":
		return HelpCommand, ""
	case "/clear":
		return ClearCommand, ""
	case "/system":
		return SystemCommand, ""
	}

	const system = "/system"
	if len(body) > len(system) && strings.EqualFold(body[:len(system)], system) {
		rest := body[len(system):]
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsSpace(r) {
			return SystemCommand, strings.TrimSpace(rest)
		}
	}
	return NoCommand, ""
}
