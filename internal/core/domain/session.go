package domain

import "github.com/berfenger/glow2mqtt/pkg/glowmarkt"

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionAuthenticating
	SessionDiscoveringDevice
	SessionConnecting
	SessionActive
	SessionDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionAuthenticating:
		return "authenticating"
	case SessionDiscoveringDevice:
		return "discovering_device"
	case SessionConnecting:
		return "connecting"
	case SessionActive:
		return "active"
	case SessionDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// TelemetryUpdate is handed to listeners for every decoded message.
type TelemetryUpdate struct {
	Payload  *glowmarkt.TelemetryPayload
	Readings glowmarkt.Readings
}

// Listener runs on the session's message path and must not block.
type Listener func(update TelemetryUpdate)

type ListenerHandle uint64

type SessionInfo struct {
	State             SessionState
	HardwareId        string
	Authenticated     bool
	BrokerConnected   bool
	MessagesReceived  uint64
	MalformedMessages uint64
	Listeners         int
}
