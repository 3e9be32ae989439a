package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(WithDefaults())
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8080", config.BindAddress)
	require.Equal(t, "/dev/ttyUSB0", config.SerialPort)
	require.Equal(t, 115200, config.BaudRate)
	require.Equal(t, "info", config.LogLevel)
	require.Equal(t, "conversations.sqlite", config.DatabasePath)
	require.Equal(t, "gpt-4o", config.OpenAIModel)
	require.Equal(t, 300, config.ChunkLimit)
	require.Empty(t, config.MQTTBroker)
	require.Equal(t, "sms/send", config.MQTTTopic)
}

func TestWithFile(t *testing.T) {
	t.Run("Overlays only the keys present", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "aisms.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
serial_port: /dev/ttyACM0
openai_model: gpt-4o-mini
min_send_interval: 2s
delete_after_read: true
`), 0o600))

		config, err := LoadConfig(WithDefaults(), WithFile(path))
		require.NoError(t, err)
		require.Equal(t, "/dev/ttyACM0", config.SerialPort)
		require.Equal(t, "gpt-4o-mini", config.OpenAIModel)
		require.Equal(t, 2*time.Second, config.MinSendInterval)
		require.True(t, config.DeleteAfterRead)
		require.Equal(t, 115200, config.BaudRate)
	})

	t.Run("Empty path is ignored", func(t *testing.T) {
		_, err := LoadConfig(WithDefaults(), WithFile(""))
		require.NoError(t, err)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
		require.Error(t, err)
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("baud_rate: [fast"), 0o600))

		_, err := LoadConfig(WithFile(path))
		require.Error(t, err)
	})
}

func TestWithEnv(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyS1")
	t.Setenv("BAUD_RATE", "9600")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CHUNK_LIMIT", "160")
	t.Setenv("MIN_SEND_INTERVAL", "1500ms")
	t.Setenv("DELETE_AFTER_READ", "true")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	config, err := LoadConfig(WithDefaults(), WithEnv())
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyS1", config.SerialPort)
	require.Equal(t, 9600, config.BaudRate)
	require.Equal(t, "sk-test", config.OpenAIAPIKey)
	require.Equal(t, 160, config.ChunkLimit)
	require.Equal(t, 1500*time.Millisecond, config.MinSendInterval)
	require.True(t, config.DeleteAfterRead)
	require.Equal(t, "tcp://broker:1883", config.MQTTBroker)
}

func TestWithEnvInvalidInterval(t *testing.T) {
	t.Setenv("MIN_SEND_INTERVAL", "soon")

	_, err := LoadConfig(WithDefaults(), WithEnv())
	require.Error(t, err)
}

func newTestFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("serial-port", "/dev/ttyUSB0", "")
	flags.Int("baud-rate", 115200, "")
	flags.String("bind-address", "127.0.0.1:8080", "")
	flags.String("model", "gpt-4o", "")
	flags.Int("chunk-limit", 300, "")
	flags.Duration("min-send-interval", 0, "")
	flags.Bool("delete-after-read", false, "")
	return flags
}

func TestWithFlags(t *testing.T) {
	t.Run("Only set flags override", func(t *testing.T) {
		t.Setenv("SERIAL_PORT", "/dev/ttyS1")
		t.Setenv("OPENAI_MODEL", "from-env")

		flags := newTestFlags()
		require.NoError(t, flags.Parse([]string{
			"--model", "from-flag",
			"--chunk-limit", "120",
			"--min-send-interval", "3s",
			"--delete-after-read",
			"--bind-address", "",
		}))

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flags))
		require.NoError(t, err)
		require.Equal(t, "/dev/ttyS1", config.SerialPort)
		require.Equal(t, "from-flag", config.OpenAIModel)
		require.Equal(t, 120, config.ChunkLimit)
		require.Equal(t, 3*time.Second, config.MinSendInterval)
		require.True(t, config.DeleteAfterRead)
		require.Empty(t, config.BindAddress)
	})

	t.Run("Unset flags keep earlier values", func(t *testing.T) {
		flags := newTestFlags()
		require.NoError(t, flags.Parse(nil))

		config, err := LoadConfig(WithDefaults(), WithFlags(flags))
		require.NoError(t, err)
		require.Equal(t, 115200, config.BaudRate)
		require.Equal(t, "127.0.0.1:8080", config.BindAddress)
	})
}
