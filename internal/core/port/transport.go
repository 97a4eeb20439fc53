package port

import (
	"time"

	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"
)

// TransportEvents are invoked from the transport's own goroutines. Handlers
// must only hand the event over, never block.
type TransportEvents struct {
	// OnConnected is called on every CONNACK once the telemetry topic is subscribed
	OnConnected func()
	// OnConnectFailed is called when the initial connection attempt is rejected
	OnConnectFailed  func(err error)
	OnConnectionLost func(err error)
	OnMessage        func(topic string, payload []byte)
}

// TelemetryTransport is a publish/subscribe connection to the telemetry broker.
type TelemetryTransport interface {
	// Connect starts the network loop and returns immediately. The handshake
	// completes asynchronously through TransportEvents.
	Connect(topic string, events TransportEvents)
	// Disconnect stops the network loop, waiting at most timeout.
	Disconnect(timeout time.Duration) error
	IsConnected() bool
}

type TelemetryTransportProvider func(creds glowmarkt.Credentials) TelemetryTransport
