package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge, the smart meter and the usage
// sensors to Home Assistant once the MQTT actor is up.
type HADiscoveryActor struct {
	config       *config.Config
	behavior     actor.Behavior
	stash        *actorutil.Stash
	mqttActor    *actor.PID
	bridgeDevice domain.Device
	announced    map[string]bool

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:       config,
		mqttActor:    mqttActor,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		bridgeDevice: domain.BridgeDevice(config.MQTT.BaseTopic),
		announced:    map[string]bool{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		state.announce(ctx, "bridge", domain.BridgeSensors(state.bridgeDevice))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SessionActiveNotification:
		state.logger.Debug("hadiscovery@default SessionActiveNotification", zap.String("hardwareId", msg.HardwareId))
		state.announce(ctx, "meter/"+msg.HardwareId, domain.SmartMeterSensors(state.meterDevice(msg.HardwareId)))
	case domain.AnnounceUsageSensorsRequest:
		state.logger.Debug("hadiscovery@default AnnounceUsageSensorsRequest", zap.Int("resources", len(msg.Resources)))
		sensors := domain.UsageSensors(state.meterDevice(msg.HardwareId), msg.Resources)
		if len(sensors) > 0 {
			state.announce(ctx, "usage/"+msg.HardwareId, sensors)
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "default",
		})
	default:
		state.logger.Debug("hadiscovery@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) meterDevice(hardwareId string) domain.Device {
	device := domain.SmartMeterDevice(hardwareId)
	device.ViaDevice = state.bridgeDevice.Id
	return device
}

// announce publishes a group of sensors once per actor lifetime.
func (state *HADiscoveryActor) announce(ctx actor.Context, key string, sensors []domain.GenericSensor) {
	if state.announced[key] {
		return
	}
	state.announced[key] = true
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors: sensors,
	})
}
