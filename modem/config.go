package modem

import (
	"io"
	"log/slog"
	"time"
)

// Config holds the settings used by New. Build one with NewConfigBuilder.
type Config struct {
	dialer          Dialer
	logger          *slog.Logger
	simPIN          string
	atTimeout       time.Duration
	sendTimeout     time.Duration
	initTimeout     time.Duration
	pollInterval    time.Duration
	idleInterval    time.Duration
	settleDelay     time.Duration
	deleteAfterRead bool
	simPoll         PollConfig
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.sendTimeout == 0 {
		c.sendTimeout = 60 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.pollInterval == 0 {
		c.pollInterval = time.Second
	}
	if c.idleInterval == 0 {
		c.idleInterval = 10 * time.Millisecond
	}
	if c.settleDelay == 0 {
		c.settleDelay = time.Second
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets how the Transport is opened. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.simPIN = pin
	return b
}

// WithATTimeout bounds the wait for the terminator of ordinary commands.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

// WithSendTimeout bounds the wait for the network confirmation after the
// message body has been submitted.
func (b *ConfigBuilder) WithSendTimeout(d time.Duration) *ConfigBuilder {
	b.config.sendTimeout = d
	return b
}

// WithInitTimeout bounds the whole provisioning sequence run by New.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithPollInterval sets how often Run drains the transport looking for
// unsolicited notifications.
func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.pollInterval = d
	return b
}

// WithIdleInterval sets the sleep between empty reads while waiting for a
// command terminator.
func (b *ConfigBuilder) WithIdleInterval(d time.Duration) *ConfigBuilder {
	b.config.idleInterval = d
	return b
}

// WithSettleDelay sets the fixed wait between issuing AT+CMGR and reading
// its reply.
func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.settleDelay = d
	return b
}

// WithDeleteAfterRead removes each message from modem storage once it has
// been retrieved and parsed.
func (b *ConfigBuilder) WithDeleteAfterRead(enabled bool) *ConfigBuilder {
	b.config.deleteAfterRead = enabled
	return b
}

// WithSIMPoll tunes the wait for the SIM to become ready after a PIN.
func (b *ConfigBuilder) WithSIMPoll(p PollConfig) *ConfigBuilder {
	b.config.simPoll = p
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	config := b.config
	config.setDefaults()
	return config, nil
}
