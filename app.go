package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"i4.energy/across/aisms/completion"
	"i4.energy/across/aisms/gateway"
	"i4.energy/across/aisms/history"
	"i4.energy/across/aisms/modem"
	"i4.energy/across/aisms/queue"
)

const shutdownTimeout = 30 * time.Second

// runGateway provisions the modem from builder and runs the gateway until
// ctx ends. Setup failures are returned before anything is started.
func runGateway(ctx context.Context, config *Config, builder *modem.ConfigBuilder, logger *slog.Logger) error {
	store, err := history.NewStore(config.DatabasePath, config.SystemPrompt, logger.With("component", "history"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close history store", "error", err)
		}
	}()

	if config.OpenAIAPIKey == "" {
		logger.Warn("No OpenAI API key configured, every reply will be the fallback message")
	}
	completer := completion.NewClient(completion.Config{
		APIKey:  config.OpenAIAPIKey,
		BaseURL: config.OpenAIBaseURL,
		Model:   config.OpenAIModel,
		Logger:  logger.With("component", "completion"),
	})

	modemConfig, err := builder.
		WithSimPIN(config.SimPIN).
		WithDeleteAfterRead(config.DeleteAfterRead).
		WithLogger(logger.With("component", "modem")).
		Build()
	if err != nil {
		return fmt.Errorf("create modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("create modem: %w", err)
	}

	inbound := queue.New[modem.SMS]()
	dispatcher := gateway.NewDispatcher(store, completer, m, gateway.Config{
		ChunkLimit:      config.ChunkLimit,
		MinSendInterval: config.MinSendInterval,
		Logger:          logger.With("component", "dispatcher"),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx, inbound); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message worker failed", "error", err)
		}
	}()

	var httpServer *http.Server
	if config.BindAddress != "" {
		httpServer = &http.Server{
			Addr: config.BindAddress,
			Handler: &Server{
				Logger:  logger.With("component", "server"),
				Sender:  dispatcher,
				History: store,
				Token:   config.HTTPToken,
			},
		}
		go func() {
			logger.Info("Starting HTTP server", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
	}

	if _, err := startMQTT(ctx, config, dispatcher, logger.With("component", "mqtt")); err != nil {
		// The bridge is optional; the gateway keeps serving without it.
		logger.Error("Failed to start MQTT bridge", "error", err)
	}

	logger.Info("Starting SMS gateway", "serial_port", config.SerialPort, "model", config.OpenAIModel)

	err = m.Run(ctx, func(msg modem.SMS) {
		if err := inbound.Push(msg); err != nil {
			logger.Warn("Dropping message, queue closed", "sender", msg.Sender)
			return
		}
		logger.Debug("Message queued", "sender", msg.Sender, "queued", inbound.Len())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Modem loop stopped", "error", err)
	}

	if n := inbound.Len(); n > 0 {
		logger.Warn("Shutting down with unprocessed messages", "count", n)
	}
	inbound.Close()
	wg.Wait()

	// Closing the modem releases HTTP and MQTT senders still waiting on it.
	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil && !errors.Is(err, modem.ErrAlreadyClosed) {
		logger.Error("Failed to close modem", "error", err)
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Closing HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to gracefully shutdown server", "error", err)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
