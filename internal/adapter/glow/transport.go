package glow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/port"
	"github.com/berfenger/glow2mqtt/internal/mqtt"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectRetryInterval = 2 * time.Second
	subscribeTimeout     = 5 * time.Second
)

// MQTTTransport streams Glow telemetry from the Hildebrand broker.
type MQTTTransport struct {
	host   string
	port   int
	creds  glowmarkt.Credentials
	logger *zap.Logger

	mu     sync.Mutex
	client *mqtt.MQTTClient
}

func NewMQTTTransportProvider(cfg *config.Config, logger *zap.Logger) port.TelemetryTransportProvider {
	return func(creds glowmarkt.Credentials) port.TelemetryTransport {
		return &MQTTTransport{
			host:   cfg.Glow.MQTTHost,
			port:   cfg.Glow.MQTTPort,
			creds:  creds,
			logger: logger.With(zap.String("transport", "glow_mqtt")),
		}
	}
}

func (t *MQTTTransport) Connect(topic string, events port.TransportEvents) {
	opts := mqtt.GlowOpts(t.host, t.port, t.creds, connectRetryInterval)

	var client *mqtt.MQTTClient
	client = mqtt.CreateMQTTClient(opts, "", func(_ pahomqtt.Client) {
		// subscriptions are not resumed on a clean session, subscribe on every CONNACK.
		// the ack is reported first so it is queued ahead of any message.
		t.logger.Debug("glow transport: connected, subscribing", zap.String("topic", topic))
		events.OnConnected()
		client.Subscribe(topic, 0, func(_ pahomqtt.Client, m pahomqtt.Message) {
			events.OnMessage(m.Topic(), m.Payload())
		}, func(err error) {
			if err != nil {
				t.logger.Error("glow transport: subscribe failed", zap.String("topic", topic), zap.Error(err))
			}
		}, subscribeTimeout)
	}, func(_ pahomqtt.Client, err error) {
		t.logger.Warn("glow transport: connection lost", zap.Error(err))
		events.OnConnectionLost(err)
	})

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	client.Connect(connectContinuation(events), subscribeTimeout)
}

// connectContinuation reports a rejected connect. With connect retry enabled
// the token only completes with an error when the attempt is given up, a wait
// timeout means paho is still retrying.
func connectContinuation(events port.TransportEvents) func(error) {
	return func(err error) {
		if err != nil && !errors.Is(err, mqtt.ErrTimeout) {
			events.OnConnectFailed(err)
		}
	}
}

func (t *MQTTTransport) Disconnect(timeout time.Duration) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Disconnect(timeout / 2)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("glow transport: disconnect did not complete in %s", timeout)
	}
}

func (t *MQTTTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnected()
}

// ensure interface compliance
var _ port.TelemetryTransport = (*MQTTTransport)(nil)
