package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"i4.energy/across/aisms/history"
	"i4.energy/across/aisms/modem"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "aisms",
		Short:         "SMS gateway to a chat completion API",
		Long:          "aisms answers text messages received by a GSM modem with replies from an OpenAI-compatible chat completion API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("database", "conversations.sqlite", "Path to the conversation database")

	root.AddCommand(serveCmd())
	root.AddCommand(historyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, config.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			builder := modem.NewConfigBuilder().
				WithATTimeout(5 * time.Second).
				WithInitTimeout(30 * time.Second).
				WithDialer(modem.SerialDialer{
					PortName: config.SerialPort,
					BaudRate: config.BaudRate,
				})

			if err := runGateway(ctx, config, builder, logger); err != nil {
				logger.Error("Gateway stopped", "error", err)
				return err
			}
			logger.Info("Gateway stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flags.Int("baud-rate", 115200, "Baud rate for serial communication")
	flags.String("bind-address", "127.0.0.1:8080", "Bind address for the HTTP server, empty to disable")
	flags.String("sim-pin", "", "SIM card PIN code (if required)")
	flags.String("model", "gpt-4o", "Chat completion model")
	flags.Int("chunk-limit", 300, "Maximum characters per outbound SMS")
	flags.Duration("min-send-interval", 0, "Minimum time between outbound SMS")
	flags.Bool("delete-after-read", false, "Delete messages from the SIM once read")
	flags.String("mqtt-broker", "", "MQTT broker URL for the send bridge, empty to disable")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and clear stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *history.Store) error {
				list, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range list {
					fmt.Fprintf(out, "%s\t%d messages\t%s\n", s.Phone, s.Messages, humanize.Time(s.UpdatedAt))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <phone>",
		Short: "Print a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *history.Store) error {
				h, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(h)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <phone>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *history.Store) error {
				if err := store.Clear(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared conversation with %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func withStore(cmd *cobra.Command, fn func(*history.Store) error) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), config.LogLevel)

	store, err := history.NewStore(config.DatabasePath, config.SystemPrompt, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

// loadConfig layers defaults, the config file, the environment and the
// command line flags, in that order.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	config, err := LoadConfig(WithDefaults(), WithFile(configPath), WithEnv(), WithFlags(cmd.Flags()))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return config, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
