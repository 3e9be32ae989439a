package gateway

//go:generate go tool mockgen -source=ports.go -destination=mock_ports.go -package=gateway

import (
	"context"

	"i4.energy/across/aisms/history"
)

// Conversations is the history store as seen by the dispatcher.
type Conversations interface {
	Reset(ctx context.Context, phone, system string) (history.History, error)
	Append(ctx context.Context, phone, content, role string) (history.History, error)
	Clear(ctx context.Context, phone string) error
}

// Completer produces the assistant reply for a conversation. It always
// returns something to send.
type Completer interface {
	Complete(ctx context.Context, messages []history.Message) string
}

// Sender delivers one SMS.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
}
