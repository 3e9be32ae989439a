package modem_test

import (
	"context"
	"testing"

	"i4.energy/across/aisms/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Builds with a dialer func", func(t *testing.T) {
		dialer := modem.DialerFunc(func(context.Context) (modem.Transport, error) {
			return modem.NewTestTransport(), nil
		})

		_, err := modem.NewConfigBuilder().
			WithDialer(dialer).
			WithSimPIN("1234").
			WithDeleteAfterRead(true).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}
	})
}
