package domain

import (
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_SESSION      = "session"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_USAGE_POLLER = "usage_poller"
)

// Session

type SessionConnectRequest struct {
	ActorRequestMixIn
}

type SessionConnectResponse struct {
	ActorResponseMixIn
	HardwareId string
}

type SessionDisconnectRequest struct {
	ActorRequestMixIn
}

type SessionDisconnectResponse struct {
	ActorResponseMixIn
	TimedOut bool
}

type RegisterListenerRequest struct {
	ActorRequestMixIn
	Listener Listener
}

type RegisterListenerResponse struct {
	ActorResponseMixIn
	Handle ListenerHandle
}

type UnregisterListenerRequest struct {
	ActorRequestMixIn
	Handle ListenerHandle
}

type UnregisterListenerResponse struct {
	ActorResponseMixIn
	Removed bool
}

type GetReadingsRequest struct {
	ActorRequestMixIn
}

type GetReadingsResponse struct {
	ActorResponseMixIn
	Readings glowmarkt.Readings
}

type GetSessionInfoRequest struct {
	ActorRequestMixIn
}

type GetSessionInfoResponse struct {
	ActorResponseMixIn
	Info SessionInfo
}

type ListResourcesRequest struct {
	ActorRequestMixIn
}

type ListResourcesResponse struct {
	ActorResponseMixIn
	Resources []glowmarkt.Resource
}

type CurrentUsageRequest struct {
	ActorRequestMixIn
	ResourceId string
}

type CurrentUsageResponse struct {
	ActorResponseMixIn
	Usage *glowmarkt.CurrentUsage
}

// SessionActiveNotification is sent by the master once the session reached Active.
type SessionActiveNotification struct {
	ActorRequestMixIn
	HardwareId string
}

type AnnounceUsageSensorsRequest struct {
	ActorRequestMixIn
	HardwareId string
	Resources  []glowmarkt.Resource
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
