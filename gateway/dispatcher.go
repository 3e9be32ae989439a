// Package gateway turns incoming text messages into assistant replies.
//
// The Dispatcher is the single consumer of the inbound queue. For each
// message it either runs a slash command against the conversation history
// or extends the conversation, asks the completion API for a reply, and
// sends that reply back in SMS-sized chunks.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"i4.energy/across/aisms/history"
	"i4.energy/across/aisms/modem"
	"i4.energy/across/aisms/outbound"
	"i4.energy/across/aisms/queue"
)

// Config tunes a Dispatcher. Zero fields take defaults.
type Config struct {
	// ChunkLimit is the per-SMS character budget for replies.
	// Defaults to outbound.DefaultChunkLimit.
	ChunkLimit int
	// MinSendInterval spaces consecutive outbound messages. Zero sends
	// back to back.
	MinSendInterval time.Duration
	Logger          *slog.Logger
}

// Dispatcher processes inbound messages one at a time.
type Dispatcher struct {
	conversations Conversations
	completer     Completer
	sender        Sender
	chunkLimit    int
	limiter       *rate.Limiter
	logger        *slog.Logger
}

func NewDispatcher(conversations Conversations, completer Completer, sender Sender, cfg Config) *Dispatcher {
	if cfg.ChunkLimit == 0 {
		cfg.ChunkLimit = outbound.DefaultChunkLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinSendInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinSendInterval), 1)
	}

	return &Dispatcher{
		conversations: conversations,
		completer:     completer,
		sender:        sender,
		chunkLimit:    cfg.ChunkLimit,
		limiter:       limiter,
		logger:        cfg.Logger,
	}
}

// Run pops messages from q and handles them until q is closed and drained,
// or ctx ends.
func (d *Dispatcher) Run(ctx context.Context, q *queue.Queue[modem.SMS]) error {
	d.logger.Info("Message worker started")
	for {
		msg, err := q.Pop(ctx)
		if errors.Is(err, queue.ErrClosed) {
			d.logger.Info("Message worker stopped")
			return nil
		}
		if err != nil {
			return err
		}
		d.Handle(ctx, msg)
	}
}

// Handle processes one message to completion. Failures are logged and end
// the processing of this message only.
func (d *Dispatcher) Handle(ctx context.Context, msg modem.SMS) {
	logger := d.logger.With("sender", msg.Sender, "correlation_id", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while processing message", "panic", r)
		}
	}()

	body := strings.TrimSpace(msg.Text)
	logger.Info("Processing message", "body", body)

	if cmd, arg := ParseCommand(body); cmd != NoCommand {
		reply, err := d.command(ctx, msg.Sender, cmd, arg)
		if err != nil {
			logger.Error("Failed to run command", "error", err)
			return
		}
		d.send(ctx, logger, msg.Sender, []string{outbound.Sanitize(reply)})
		return
	}

	conversation, err := d.conversations.Append(ctx, msg.Sender, body, history.RoleUser)
	if err != nil {
		logger.Error("Failed to record message", "error", err)
		return
	}

	reply := d.completer.Complete(ctx, conversation)
	logger.Info("Received response", "response", reply)

	if _, err := d.conversations.Append(ctx, msg.Sender, reply, history.RoleAssistant); err != nil {
		logger.Error("Failed to record response", "error", err)
		return
	}

	chunks := outbound.Chunk(outbound.Sanitize(reply), d.chunkLimit)
	if len(chunks) == 0 {
		logger.Warn("Response is empty after sanitizing, nothing to send")
		return
	}
	d.send(ctx, logger, msg.Sender, chunks)
}

// Deliver sanitizes, chunks and sends text to the given number. It is the
// path for operator-initiated messages. The returned error joins every
// failed chunk.
func (d *Dispatcher) Deliver(ctx context.Context, to, text string) error {
	chunks := outbound.Chunk(outbound.Sanitize(text), d.chunkLimit)
	if len(chunks) == 0 {
		return errors.New("message is empty after sanitizing")
	}
	return d.send(ctx, d.logger.With("to", to), to, chunks)
}

func (d *Dispatcher) command(ctx context.Context, phone string, cmd Command, arg string) (string, error) {
	switch cmd {
	case HelpCommand:
		return helpText, nil

	case ClearCommand:
		if err := d.conversations.Clear(ctx, phone); err != nil {
			return "", err
		}
		return "Conversation history cleared.", nil

	case SystemCommand:
		h, err := d.conversations.Reset(ctx, phone, arg)
		if err != nil {
			return "", err
		}
		system := arg
		if len(h) > 0 {
			system = h[0].Content
		}
		return fmt.Sprintf("System message set to: %s", system), nil
	}
	return "", fmt.Errorf("unknown command %d", cmd)
}

// send delivers chunks in order. A failed chunk is logged and the rest are
// still attempted.
func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, to string, chunks []string) error {
	var errs []error
	for i, chunk := range chunks {
		if err := d.limiter.Wait(ctx); err != nil {
			logger.Error("Send pacing interrupted", "error", err)
			return errors.Join(append(errs, err)...)
		}
		if err := d.sender.SendSMS(ctx, to, chunk); err != nil {
			logger.Error("Failed to send SMS", "chunk", i+1, "total", len(chunks), "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Debug("Chunk sent", "chunk", i+1, "total", len(chunks))
	}
	return errors.Join(errs...)
}
