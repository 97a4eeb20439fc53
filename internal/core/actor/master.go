package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/glow2mqtt/internal/adapter/actor"
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/core/events"
	. "github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	DEFAULT_RETRY_MIN_BACKOFF = 1 * time.Second
	DEFAULT_RETRY_MAX_BACKOFF = 5 * time.Minute
	SESSION_WATCH_INTERVAL    = 5 * time.Second
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type SessionActorProvider func() *SessionActor

// MasterOfPuppetsActor wires the bridge together: it owns the session, keeps
// it connected and turns telemetry into sensor events.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck   healthCheckResult
	eventStream          *eventstream.EventStream
	scheduler            *scheduler.TimerScheduler
	sessionActor         *actor.PID
	mqttActor            *actor.PID
	haDiscoveryActor     *actor.PID
	usagePollerActor     *actor.PID
	sessionActorProvider SessionActorProvider
	mqttActorProvider    MQTTActorProvider

	minBackoff      time.Duration
	maxBackoff      time.Duration
	backoff         time.Duration
	connectTimeout  time.Duration
	connectFailure  error
	connectPending  bool
	brokerConnected *bool
	cancelWatch     scheduler.CancelFunc

	logger *zap.Logger
}

type healthCheckResult struct {
	sessionActorHealthy bool
	mqttActorHealthy    bool
	sessionState        string
	checksReceived      int
	respondTo           *actor.PID
}

type readingsUpdate struct {
	readings glowmarkt.Readings
}

type connectRetry struct {
}

type sessionWatchTick struct {
}

func NewMasterOfPuppetsActor(config config.Config, sessionActorProvider SessionActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          &eventstream.EventStream{},
		sessionActorProvider: sessionActorProvider,
		mqttActorProvider:    mqttActorProvider,
		minBackoff:           millisOr(config.SessionConfig.RetryMinBackoffMillis, DEFAULT_RETRY_MIN_BACKOFF),
		maxBackoff:           millisOr(config.SessionConfig.RetryMaxBackoffMillis, DEFAULT_RETRY_MAX_BACKOFF),
		connectTimeout:       ConnectCallTimeout(&config),
	}
	act.backoff = act.minBackoff
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

// EventStream carries the sensor update events published by the bridge.
func (state *MasterOfPuppetsActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Session child
		sessionActorPID, err := state.startSessionActor(ctx)
		if err != nil {
			panic(err)
		}
		state.sessionActor = sessionActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			haDiscPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haDiscPID
		}

		// start Usage Poller
		if state.config.MonitorConfig.UsagePollIntervalMillis > 0 {
			pollerPID, err := state.startUsagePollerActor(ctx)
			if err != nil {
				panic(err)
			}
			state.usagePollerActor = pollerPID
		}

		state.registerReadingsListener(ctx)
		state.connectSession(ctx)
		state.cancelWatch = state.scheduler.SendRepeatedly(SESSION_WATCH_INTERVAL, SESSION_WATCH_INTERVAL, ctx.Self(), sessionWatchTick{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SessionConnectResponse:
		state.onConnectResult(ctx, msg)
	case domain.RegisterListenerResponse:
		state.logger.Debug("master@default readings listener registered", zap.Uint64("handle", uint64(msg.Handle)))
	case connectRetry:
		state.logger.Debug("master@default connectRetry")
		state.connectSession(ctx)
	case readingsUpdate:
		for _, evt := range events.ReadingsToUpdateEvents(msg.readings) {
			state.eventStream.Publish(evt)
		}
	case sessionWatchTick:
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sessionActor, domain.GetSessionInfoRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.GetSessionInfoResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.GetSessionInfoResponse:
		if !msg.HasResponseError() {
			state.publishBrokerConnected(msg.Info.BrokerConnected)
			// a restarted session starts with an empty registry
			if msg.Info.Listeners == 0 {
				state.logger.Warn("master@default session lost its listeners, registering again")
				state.registerReadingsListener(ctx)
			}
			if msg.Info.State == domain.SessionIdle && !state.connectPending && state.connectFailure == nil {
				state.logger.Warn("master@default session is idle, connecting again")
				state.connectSession(ctx)
			}
		}
	case domain.GetReadingsRequest, domain.GetSessionInfoRequest, domain.RegisterListenerRequest, domain.UnregisterListenerRequest:
		// served by the session
		ctx.Forward(state.sessionActor)
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Session Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sessionActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SESSION,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case *actor.Stopping:
		if state.cancelWatch != nil {
			state.cancelWatch()
		}
	case *actor.Terminated:
		// if the session dies, terminate
		if msg.Who.Id == state.sessionActor.Id {
			state.logger.Error("master@default session terminated")
			panic(errors.New("session terminated"))
		}
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx, state.connectFailure)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_SESSION:
				state.currentHealthCheck.sessionActorHealthy = true
				state.currentHealthCheck.sessionState = msg.State
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx, state.connectFailure)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	case readingsUpdate:
		// telemetry is not held back by a health check
		for _, evt := range events.ReadingsToUpdateEvents(msg.readings) {
			state.eventStream.Publish(evt)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) connectSession(ctx actor.Context) {
	state.connectPending = true
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sessionActor, domain.SessionConnectRequest{}, state.connectTimeout), func(err error) any {
		return domain.SessionConnectResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("%w: %w", glowmarkt.ErrCannotConnect, err),
			},
		}
	})
}

// onConnectResult decides what to do with a connect outcome: connectivity
// failures are retried with exponential backoff, credential and hardware
// problems need the user and are not retried.
func (state *MasterOfPuppetsActor) onConnectResult(ctx actor.Context, msg domain.SessionConnectResponse) {
	err := msg.GetResponseError()
	switch {
	case err == nil:
		state.logger.Info("master@default session active", zap.String("hardwareId", msg.HardwareId))
		state.connectFailure = nil
		state.connectPending = false
		state.backoff = state.minBackoff
		state.publishBrokerConnected(true)
		notification := domain.SessionActiveNotification{HardwareId: msg.HardwareId}
		if state.haDiscoveryActor != nil {
			ctx.Send(state.haDiscoveryActor, notification)
		}
		if state.usagePollerActor != nil {
			ctx.Send(state.usagePollerActor, notification)
		}
	case errors.Is(err, glowmarkt.ErrInvalidAuth):
		state.connectFailure = err
		state.connectPending = false
		state.logger.Error("master@default glowmarkt rejected the credentials, reauthentication required", zap.Error(err))
	case errors.Is(err, glowmarkt.ErrNoCadAvailable):
		state.connectFailure = err
		state.connectPending = false
		state.logger.Error("master@default no Glow CAD found on the account, check the account configuration", zap.Error(err))
	default:
		state.connectFailure = err
		state.logger.Debug("master@default cannot connect, retrying", zap.Duration("backoff", state.backoff), zap.Error(err))
		state.scheduler.SendOnce(state.backoff, ctx.Self(), connectRetry{})
		state.backoff = nextBackoff(state.backoff, state.maxBackoff)
	}
}

func (state *MasterOfPuppetsActor) registerReadingsListener(ctx actor.Context) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	ctx.Send(state.sessionActor, domain.RegisterListenerRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{
			ReplyToRef: domain.RefOf(self),
		},
		Listener: func(update domain.TelemetryUpdate) {
			root.Send(self, readingsUpdate{readings: update.Readings})
		},
	})
}

func (state *MasterOfPuppetsActor) publishBrokerConnected(connected bool) {
	if state.brokerConnected != nil && *state.brokerConnected == connected {
		return
	}
	state.brokerConnected = &connected
	state.eventStream.Publish(events.BrokerConnectedUpdateEvent(connected))
}

func (state *MasterOfPuppetsActor) startSessionActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	sessionProps := actor.PropsFromProducer(func() actor.Actor {
		return state.sessionActorProvider()
	}, actor.WithSupervisor(supervisor))
	sessionActorPID, err := ctx.SpawnNamed(sessionProps, domain.ACTOR_ID_SESSION)
	if err != nil {
		return nil, err
	}

	return sessionActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startUsagePollerActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	interval := time.Duration(state.config.MonitorConfig.UsagePollIntervalMillis) * time.Millisecond
	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewUsagePollerActor(interval, state.sessionActor, state.haDiscoveryActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pollerPID, err := ctx.SpawnNamed(pollerProps, domain.ACTOR_ID_USAGE_POLLER)
	if err != nil {
		return nil, err
	}

	return pollerPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (state *healthCheckResult) reset() {
	state.sessionActorHealthy = false
	state.mqttActorHealthy = false
	state.sessionState = ""
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 2
}

func (state *healthCheckResult) allHealthy() bool {
	return state.sessionActorHealthy && state.mqttActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context, connectFailure error) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.sessionState,
	}
	// credential and hardware problems do not heal by themselves
	if connectFailure != nil && !glowmarkt.IsRetryable(connectFailure) {
		resp.Healthy = false
		resp.ResponseError = connectFailure
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
