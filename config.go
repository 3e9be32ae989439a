package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the operator API listens on (e.g. "127.0.0.1:8080").
	// Empty disables the API.
	BindAddress string `yaml:"bind_address"`
	// HTTPToken, when set, is required as a bearer token on every API request
	HTTPToken string `yaml:"http_token"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// SimPIN is the SIM card PIN code
	SimPIN string `yaml:"sim_pin"`
	// DeleteAfterRead removes messages from SIM storage once retrieved
	DeleteAfterRead bool `yaml:"delete_after_read"`

	// DatabasePath is the SQLite file holding conversation histories
	DatabasePath string `yaml:"database_path"`
	// SystemPrompt seeds new conversations
	SystemPrompt string `yaml:"system_prompt"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	// ChunkLimit is the maximum length of one outbound SMS
	ChunkLimit int `yaml:"chunk_limit"`
	// MinSendInterval spaces consecutive outbound SMS
	MinSendInterval time.Duration `yaml:"min_send_interval"`

	// MQTTBroker enables the MQTT send bridge (e.g. "tcp://localhost:1883")
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTUsername string `yaml:"mqtt_username"`
	MQTTPassword string `yaml:"mqtt_password"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "127.0.0.1:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.DatabasePath = "conversations.sqlite"
		c.OpenAIBaseURL = "https://api.openai.com/v1"
		c.OpenAIModel = "gpt-4o"
		c.ChunkLimit = 300
		c.MQTTClientID = "aisms"
		c.MQTTTopic = "sms/send"
		return nil
	}
}

// WithFile overlays values from a YAML file. Keys missing from the file keep
// their current value. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		fields := map[string]*string{
			"BIND_ADDRESS":    &c.BindAddress,
			"HTTP_TOKEN":      &c.HTTPToken,
			"SERIAL_PORT":     &c.SerialPort,
			"LOG_LEVEL":       &c.LogLevel,
			"SIM_PIN":         &c.SimPIN,
			"DATABASE_PATH":   &c.DatabasePath,
			"SYSTEM_PROMPT":   &c.SystemPrompt,
			"OPENAI_API_KEY":  &c.OpenAIAPIKey,
			"OPENAI_BASE_URL": &c.OpenAIBaseURL,
			"OPENAI_MODEL":    &c.OpenAIModel,
			"MQTT_BROKER":     &c.MQTTBroker,
			"MQTT_CLIENT_ID":  &c.MQTTClientID,
			"MQTT_TOPIC":      &c.MQTTTopic,
			"MQTT_USERNAME":   &c.MQTTUsername,
			"MQTT_PASSWORD":   &c.MQTTPassword,
		}
		for key, field := range fields {
			if v := os.Getenv(key); v != "" {
				*field = v
			}
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if limit := os.Getenv("CHUNK_LIMIT"); limit != "" {
			if l, err := strconv.Atoi(limit); err == nil {
				c.ChunkLimit = l
			}
		}

		if interval := os.Getenv("MIN_SEND_INTERVAL"); interval != "" {
			d, err := time.ParseDuration(interval)
			if err != nil {
				return fmt.Errorf("MIN_SEND_INTERVAL: %w", err)
			}
			c.MinSendInterval = d
		}

		if del := os.Getenv("DELETE_AFTER_READ"); del != "" {
			if b, err := strconv.ParseBool(del); err == nil {
				c.DeleteAfterRead = b
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags. Only flags set on
// the command line are applied.
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, convErr := strconv.Atoi(f.Value.String()); convErr == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "sim-pin":
				c.SimPIN = f.Value.String()
			case "database":
				c.DatabasePath = f.Value.String()
			case "model":
				c.OpenAIModel = f.Value.String()
			case "chunk-limit":
				if l, convErr := strconv.Atoi(f.Value.String()); convErr == nil {
					c.ChunkLimit = l
				}
			case "min-send-interval":
				d, parseErr := time.ParseDuration(f.Value.String())
				if parseErr != nil {
					err = fmt.Errorf("--min-send-interval: %w", parseErr)
					return
				}
				c.MinSendInterval = d
			case "delete-after-read":
				c.DeleteAfterRead = f.Value.String() == "true"
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			}
		})
		return err
	}
}
