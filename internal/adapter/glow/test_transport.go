package glow

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/glow2mqtt/internal/core/port"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"
)

// TestTransport is a scriptable in-memory TelemetryTransport.
type TestTransport struct {
	// AckConnect acknowledges the connection right after Connect
	AckConnect bool
	// ConnectErr rejects the connection attempt
	ConnectErr error
	// DisconnectDelay simulates a network loop slow to stop
	DisconnectDelay time.Duration

	Connects    atomic.Int32
	Disconnects atomic.Int32

	mu      sync.Mutex
	topic   string
	events  *port.TransportEvents
	running bool
}

func NewTestTransportProvider(transport *TestTransport) port.TelemetryTransportProvider {
	return func(_ glowmarkt.Credentials) port.TelemetryTransport {
		return transport
	}
}

func (t *TestTransport) Connect(topic string, events port.TransportEvents) {
	t.Connects.Add(1)
	t.mu.Lock()
	t.topic = topic
	t.events = &events
	t.running = true
	t.mu.Unlock()

	switch {
	case t.ConnectErr != nil:
		go events.OnConnectFailed(t.ConnectErr)
	case t.AckConnect:
		go events.OnConnected()
	}
}

func (t *TestTransport) Disconnect(timeout time.Duration) error {
	t.Disconnects.Add(1)
	if t.DisconnectDelay > 0 {
		if t.DisconnectDelay > timeout {
			time.Sleep(timeout)
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return errors.New("test transport: disconnect timed out")
		}
		time.Sleep(t.DisconnectDelay)
	}
	t.mu.Lock()
	t.running = false
	t.events = nil
	t.mu.Unlock()
	return nil
}

func (t *TestTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Running reports whether the network loop is still up.
func (t *TestTransport) Running() bool {
	return t.IsConnected()
}

func (t *TestTransport) Topic() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.topic
}

// Ack delivers a CONNACK.
func (t *TestTransport) Ack() {
	if ev := t.currentEvents(); ev != nil {
		ev.OnConnected()
	}
}

// Drop simulates a lost connection.
func (t *TestTransport) Drop(err error) {
	if ev := t.currentEvents(); ev != nil {
		ev.OnConnectionLost(err)
	}
}

// Emit delivers a telemetry message on the subscribed topic.
func (t *TestTransport) Emit(payload []byte) {
	if ev := t.currentEvents(); ev != nil {
		ev.OnMessage(t.Topic(), payload)
	}
}

func (t *TestTransport) currentEvents() *port.TransportEvents {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	return t.events
}

// ensure interface compliance
var _ port.TelemetryTransport = (*TestTransport)(nil)
