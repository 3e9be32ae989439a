package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttConnectTimeout = 10 * time.Second

// mqttBridge accepts send requests published on an MQTT topic. Payloads use
// the same JSON shape as POST /sms: {"to": "...", "message": "..."}.
type mqttBridge struct {
	ctx    context.Context
	logger *slog.Logger
	sender Deliverer
	topic  string
}

// startMQTT connects to the broker in cfg and subscribes the bridge. The
// client reconnects on its own and is disconnected when ctx ends. Returns
// nil when no broker is configured.
func startMQTT(ctx context.Context, cfg *Config, sender Deliverer, logger *slog.Logger) (mqtt.Client, error) {
	if cfg.MQTTBroker == "" {
		return nil, nil
	}

	bridge := &mqttBridge{ctx: ctx, logger: logger, sender: sender, topic: cfg.MQTTTopic}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(bridge.subscribe)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.MQTTBroker, err)
	}

	go func() {
		<-ctx.Done()
		client.Disconnect(500)
	}()
	return client, nil
}

func (b *mqttBridge) subscribe(c mqtt.Client) {
	b.logger.Info("MQTT connected, subscribing", "topic", b.topic)
	if token := c.Subscribe(b.topic, 0, b.handleMessage); token.Wait() && token.Error() != nil {
		b.logger.Error("MQTT subscribe failed", "topic", b.topic, "error", token.Error())
	}
}

func (b *mqttBridge) handleMessage(_ mqtt.Client, m mqtt.Message) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(m.Payload(), &req); err != nil {
		b.logger.Warn("Ignoring MQTT payload", "topic", m.Topic(), "error", err)
		return
	}
	if req.To == "" || req.Message == "" {
		b.logger.Warn("Ignoring MQTT payload without 'to' and 'message'", "topic", m.Topic())
		return
	}

	if err := b.sender.Deliver(b.ctx, req.To, req.Message); err != nil {
		b.logger.Error("Failed to send SMS", "error", err, "to", req.To, "source", "mqtt")
		return
	}
	b.logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message), "source", "mqtt")
}
