package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type delivery struct{ to, text string }

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []delivery
	err  error
}

func (f *fakeDeliverer) Deliver(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, delivery{to, text})
	return nil
}

func (f *fakeDeliverer) deliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.sent...)
}

func TestMQTTBridgeHandleMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []delivery
	}{
		{"Valid request", `{"to":"+15551234567","message":"hi there"}`, []delivery{{"+15551234567", "hi there"}}},
		{"Missing recipient", `{"message":"hi"}`, nil},
		{"Missing message", `{"to":"+15551234567"}`, nil},
		{"Invalid JSON", `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeDeliverer{}
			bridge := &mqttBridge{
				ctx:    context.Background(),
				logger: slog.New(slog.DiscardHandler),
				sender: sender,
				topic:  "sms/send",
			}

			bridge.handleMessage(nil, &fakeMessage{topic: "sms/send", payload: []byte(tt.payload)})
			require.Equal(t, tt.want, sender.deliveries())
		})
	}
}

func TestMQTTBridgeDeliveryFailure(t *testing.T) {
	sender := &fakeDeliverer{err: errors.New("modem offline")}
	bridge := &mqttBridge{
		ctx:    context.Background(),
		logger: slog.New(slog.DiscardHandler),
		sender: sender,
	}

	require.NotPanics(t, func() {
		bridge.handleMessage(nil, &fakeMessage{payload: []byte(`{"to":"+1","message":"x"}`)})
	})
	require.Empty(t, sender.deliveries())
}

func TestStartMQTTDisabled(t *testing.T) {
	client, err := startMQTT(context.Background(), &Config{}, &fakeDeliverer{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.Nil(t, client)
}
