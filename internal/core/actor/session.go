package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/core/port"
	. "github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	DEFAULT_CONNECT_TIMEOUT    = 10 * time.Second
	DEFAULT_DISCONNECT_TIMEOUT = 3 * time.Second
	DEFAULT_REQUEST_TIMEOUT    = 5 * time.Second

	disconnectGrace = 500 * time.Millisecond
)

// attempts are numbered process wide so that a restarted session never
// reuses a number still carried by callbacks of its previous incarnation.
var sessionAttempts atomic.Uint64

// SessionActor owns one Glowmarkt session: the token, the discovered hardware
// id, the telemetry transport, the latest readings and the listeners.
type SessionActor struct {
	ActorWithStates
	creds             glowmarkt.Credentials
	restClient        glowmarkt.RestClient
	transportProvider port.TelemetryTransportProvider
	transport         port.TelemetryTransport
	scheduler         *scheduler.TimerScheduler
	stash             *Stash

	connectTimeout    time.Duration
	disconnectTimeout time.Duration
	requestTimeout    time.Duration

	state             domain.SessionState
	attempt           uint64
	token             string
	hardwareId        string
	readings          glowmarkt.Readings
	listeners         listenerRegistry
	brokerConnected   bool
	messagesReceived  uint64
	malformedMessages uint64

	connectWaiters []*actor.PID
	cancelDeadline scheduler.CancelFunc

	logger *zap.Logger
}

// messages piped back into the mailbox. attempt identifies the connect
// attempt that produced them; anything from an older attempt is dropped.

type authResult struct {
	attempt uint64
	token   string
	err     error
}

type discoveryResult struct {
	attempt    uint64
	hardwareId string
	err        error
}

type transportConnected struct {
	attempt uint64
}

type transportConnectFailed struct {
	attempt uint64
	err     error
}

type transportConnectionLost struct {
	attempt uint64
	err     error
}

type telemetryMessage struct {
	attempt uint64
	topic   string
	payload []byte
}

type connectDeadline struct {
	attempt uint64
}

type transportStopped struct {
	attempt  uint64
	timedOut bool
	err      error
}

type sessionState interface {
	ActorState
	SessionState() domain.SessionState
}

func NewSessionActor(cfg *config.Config, creds glowmarkt.Credentials, restClient glowmarkt.RestClient,
	transportProvider port.TelemetryTransportProvider, logger *zap.Logger) *SessionActor {
	act := &SessionActor{
		creds:             creds,
		restClient:        restClient,
		transportProvider: transportProvider,
		stash:             &Stash{},
		connectTimeout:    millisOr(cfg.SessionConfig.ConnectTimeoutMillis, DEFAULT_CONNECT_TIMEOUT),
		disconnectTimeout: millisOr(cfg.SessionConfig.DisconnectTimeoutMillis, DEFAULT_DISCONNECT_TIMEOUT),
		requestTimeout:    millisOr(cfg.SessionConfig.RequestTimeoutMillis, DEFAULT_REQUEST_TIMEOUT),
		logger:            ActorLogger(domain.ACTOR_ID_SESSION, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.become(SessionIdleState{
		actor: act,
	})
	return act
}

func (state *SessionActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *SessionActor) become(next sessionState) {
	if state.state != next.SessionState() {
		state.logger.Debug(fmt.Sprintf("session: %s -> %s", state.state, next.SessionState()))
	}
	state.state = next.SessionState()
	state.Become(next)
}

// Idle state

type SessionIdleState struct {
	ActorState
	actor *SessionActor
}

func (state SessionIdleState) Name() string {
	return "idle"
}

func (state SessionIdleState) SessionState() domain.SessionState {
	return domain.SessionIdle
}

func (state SessionIdleState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("session@idle started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
	case domain.SessionConnectRequest:
		state.actor.logger.Debug("session@idle Connect")
		state.actor.startConnect(ctx, ForRequest(msg).ReplyTo(ctx))
	case domain.SessionDisconnectRequest:
		state.actor.logger.Debug("session@idle Disconnect: already idle")
		ForRequest(msg).Respond(ctx, domain.SessionDisconnectResponse{})
	default:
		state.actor.rejectInactive(ctx, state.Name())
	}
}

// Authenticating state

type SessionAuthenticatingState struct {
	ActorState
	actor *SessionActor
}

func (state SessionAuthenticatingState) Name() string {
	return "authenticating"
}

func (state SessionAuthenticatingState) SessionState() domain.SessionState {
	return domain.SessionAuthenticating
}

func (state SessionAuthenticatingState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx, state.Name()) || state.actor.handleConnecting(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case authResult:
		if msg.attempt != state.actor.attempt {
			state.actor.logger.Debug("session@authenticating drop stale authResult")
			return
		}
		if msg.err != nil {
			state.actor.failConnect(ctx, msg.err)
			return
		}
		state.actor.logger.Debug("session@authenticating authenticated")
		state.actor.token = msg.token
		state.actor.become(SessionDiscoveringState{
			actor: state.actor,
		}.OnEnter(ctx))
	default:
		state.actor.rejectInactive(ctx, state.Name())
	}
}

func (state SessionAuthenticatingState) OnEnter(ctx actor.Context) SessionAuthenticatingState {
	act := state.actor
	attempt := act.attempt
	NewBackgroundTask(ctx, func(c context.Context) (*authResult, error) {
		resp, err := act.restClient.Authenticate(c, act.creds.ApplicationId, act.creds.Username, act.creds.Password)
		if err != nil {
			return nil, err
		}
		return &authResult{attempt: attempt, token: resp.Token}, nil
	}).WithTimeout(act.requestTimeout).Recover(func(err error) authResult {
		return authResult{attempt: attempt, err: glowmarkt.AsConnectError(err)}
	}).PipeTo(ctx.Self())
	return state
}

// Discovering state

type SessionDiscoveringState struct {
	ActorState
	actor *SessionActor
}

func (state SessionDiscoveringState) Name() string {
	return "discovering"
}

func (state SessionDiscoveringState) SessionState() domain.SessionState {
	return domain.SessionDiscoveringDevice
}

func (state SessionDiscoveringState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx, state.Name()) || state.actor.handleConnecting(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case discoveryResult:
		if msg.attempt != state.actor.attempt {
			state.actor.logger.Debug("session@discovering drop stale discoveryResult")
			return
		}
		if msg.err != nil {
			state.actor.failConnect(ctx, msg.err)
			return
		}
		state.actor.logger.Info("session@discovering found CAD", zap.String("hardwareId", msg.hardwareId))
		state.actor.hardwareId = msg.hardwareId
		state.actor.become(SessionConnectingState{
			actor: state.actor,
		}.OnEnter(ctx))
	default:
		state.actor.rejectInactive(ctx, state.Name())
	}
}

func (state SessionDiscoveringState) OnEnter(ctx actor.Context) SessionDiscoveringState {
	act := state.actor
	attempt := act.attempt
	token := act.token
	NewBackgroundTask(ctx, func(c context.Context) (*discoveryResult, error) {
		devices, err := act.restClient.ListDevices(c, act.creds.ApplicationId, token)
		if err != nil {
			return nil, err
		}
		hardwareId, err := glowmarkt.DiscoverHardwareId(devices)
		if err != nil {
			return nil, err
		}
		return &discoveryResult{attempt: attempt, hardwareId: hardwareId}, nil
	}).WithTimeout(act.requestTimeout).Recover(func(err error) discoveryResult {
		return discoveryResult{attempt: attempt, err: glowmarkt.AsConnectError(err)}
	}).PipeTo(ctx.Self())
	return state
}

// Connecting state

type SessionConnectingState struct {
	ActorState
	actor *SessionActor
}

func (state SessionConnectingState) Name() string {
	return "connecting"
}

func (state SessionConnectingState) SessionState() domain.SessionState {
	return domain.SessionConnecting
}

func (state SessionConnectingState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx, state.Name()) || state.actor.handleConnecting(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case transportConnected:
		if msg.attempt != state.actor.attempt {
			return
		}
		state.actor.logger.Info("session@connecting broker acknowledged, session active", zap.String("hardwareId", state.actor.hardwareId))
		state.actor.stopDeadline()
		state.actor.brokerConnected = true
		state.actor.become(SessionActiveState{
			actor: state.actor,
		})
		for _, waiter := range state.actor.connectWaiters {
			RespondTo(ctx, waiter, domain.SessionConnectResponse{HardwareId: state.actor.hardwareId})
		}
		state.actor.connectWaiters = nil
	case transportConnectFailed:
		if msg.attempt != state.actor.attempt {
			return
		}
		state.actor.failConnect(ctx, fmt.Errorf("%w: broker connection failed: %w", glowmarkt.ErrCannotConnect, msg.err))
	case transportConnectionLost:
		if msg.attempt != state.actor.attempt {
			return
		}
		state.actor.logger.Debug("session@connecting connection lost while connecting", zap.Error(msg.err))
		state.actor.brokerConnected = false
	case telemetryMessage:
		state.actor.logger.Debug("session@connecting drop telemetry before ack")
	default:
		state.actor.rejectInactive(ctx, state.Name())
	}
}

func (state SessionConnectingState) OnEnter(ctx actor.Context) SessionConnectingState {
	act := state.actor
	act.transport = act.transportProvider(act.creds)
	act.transport.Connect(glowmarkt.TelemetryTopic(act.hardwareId), act.transportEvents(ctx, act.attempt))
	return state
}

// Active state

type SessionActiveState struct {
	ActorState
	actor *SessionActor
}

func (state SessionActiveState) Name() string {
	return "active"
}

func (state SessionActiveState) SessionState() domain.SessionState {
	return domain.SessionActive
}

func (state SessionActiveState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case telemetryMessage:
		if msg.attempt != state.actor.attempt {
			return
		}
		state.actor.handleTelemetry(msg)
	case transportConnectionLost:
		if msg.attempt != state.actor.attempt {
			return
		}
		state.actor.logger.Warn("session@active broker connection lost, waiting for reconnect", zap.Error(msg.err))
		state.actor.brokerConnected = false
	case transportConnected:
		if msg.attempt != state.actor.attempt {
			return
		}
		state.actor.logger.Info("session@active broker reconnected")
		state.actor.brokerConnected = true
	case domain.SessionConnectRequest:
		state.actor.logger.Debug("session@active Connect: already active")
		ForRequest(msg).Respond(ctx, domain.SessionConnectResponse{HardwareId: state.actor.hardwareId})
	case domain.SessionDisconnectRequest:
		state.actor.logger.Debug("session@active Disconnect")
		state.actor.stopTransport(ctx, nil, ForRequest(msg).ReplyTo(ctx))
	case domain.ListResourcesRequest:
		state.actor.listResources(ctx, ForRequest(msg).ReplyTo(ctx))
	case domain.CurrentUsageRequest:
		state.actor.currentUsage(ctx, msg.ResourceId, ForRequest(msg).ReplyTo(ctx))
	case connectDeadline:
	default:
		state.actor.logger.Debug("session@active: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Disconnecting state

type SessionDisconnectingState struct {
	ActorState
	actor      *SessionActor
	connectErr error
	replyTo    *actor.PID
}

func (state SessionDisconnectingState) Name() string {
	return "disconnecting"
}

func (state SessionDisconnectingState) SessionState() domain.SessionState {
	return domain.SessionDisconnecting
}

func (state SessionDisconnectingState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case transportStopped:
		if msg.attempt != state.actor.attempt {
			return
		}
		if msg.timedOut {
			state.actor.logger.Warn("session@disconnecting transport did not stop in time", zap.Duration("timeout", state.actor.disconnectTimeout), zap.Error(msg.err))
		} else {
			state.actor.logger.Debug("session@disconnecting transport stopped")
		}
		state.actor.settle(ctx, state.connectErr)
		RespondTo(ctx, state.replyTo, domain.SessionDisconnectResponse{TimedOut: msg.timedOut})
	case domain.SessionConnectRequest, domain.SessionDisconnectRequest:
		state.actor.logger.Debug("session@disconnecting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	default:
		state.actor.rejectInactive(ctx, state.Name())
	}
}

// shared handlers

// handleCommon answers the requests every state serves the same way.
func (state *SessionActor) handleCommon(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.RegisterListenerRequest:
		handle := state.listeners.Register(msg.Listener)
		state.logger.Debug(fmt.Sprintf("session@%s RegisterListener", stateName), zap.Uint64("handle", uint64(handle)))
		ForRequest(msg).Respond(ctx, domain.RegisterListenerResponse{Handle: handle})
	case domain.UnregisterListenerRequest:
		removed := state.listeners.Unregister(msg.Handle)
		state.logger.Debug(fmt.Sprintf("session@%s UnregisterListener", stateName), zap.Uint64("handle", uint64(msg.Handle)), zap.Bool("removed", removed))
		ForRequest(msg).Respond(ctx, domain.UnregisterListenerResponse{Removed: removed})
	case domain.GetReadingsRequest:
		ForRequest(msg).Respond(ctx, domain.GetReadingsResponse{Readings: state.readings})
	case domain.GetSessionInfoRequest:
		ForRequest(msg).Respond(ctx, domain.GetSessionInfoResponse{Info: state.info()})
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SESSION,
			Healthy: true,
			State:   stateName,
		})
	case *actor.Stopping:
		state.logger.Debug(fmt.Sprintf("session@%s stopping", stateName))
		state.release(ctx)
	case *actor.Restarting:
		state.logger.Warn(fmt.Sprintf("session@%s restarting", stateName))
		state.release(ctx)
	default:
		return false
	}
	return true
}

// release drops everything this incarnation owns: the deadline, pending
// Connect callers and the transport, which is disconnected in the background.
func (state *SessionActor) release(ctx actor.Context) {
	state.stopDeadline()
	for _, waiter := range state.connectWaiters {
		RespondTo(ctx, waiter, domain.SessionConnectResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("%w: session stopped", glowmarkt.ErrCannotConnect),
			},
		})
	}
	state.connectWaiters = nil
	if state.transport != nil {
		transport := state.transport
		state.transport = nil
		state.brokerConnected = false
		timeout := state.disconnectTimeout
		go func() {
			_ = transport.Disconnect(timeout)
		}()
	}
}

// handleConnecting covers the requests shared by the states between Connect
// and Active.
func (state *SessionActor) handleConnecting(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.SessionConnectRequest:
		state.logger.Debug(fmt.Sprintf("session@%s Connect: join pending attempt", stateName))
		if replyTo := ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			state.connectWaiters = append(state.connectWaiters, replyTo)
		}
	case domain.SessionDisconnectRequest:
		state.logger.Debug(fmt.Sprintf("session@%s Disconnect: abort connect", stateName))
		abortErr := fmt.Errorf("%w: connect aborted by disconnect", glowmarkt.ErrCannotConnect)
		replyTo := ForRequest(msg).ReplyTo(ctx)
		state.stopDeadline()
		if state.transport != nil {
			state.stopTransport(ctx, abortErr, replyTo)
			return true
		}
		state.settle(ctx, abortErr)
		RespondTo(ctx, replyTo, domain.SessionDisconnectResponse{})
	case connectDeadline:
		if msg.attempt != state.attempt {
			return true
		}
		state.cancelDeadline = nil
		state.failConnect(ctx, fmt.Errorf("%w: session not active after %s: %w",
			glowmarkt.ErrCannotConnect, state.connectTimeout, context.DeadlineExceeded))
	default:
		return false
	}
	return true
}

func (state *SessionActor) rejectInactive(ctx actor.Context, stateName string) {
	switch msg := ctx.Message().(type) {
	case domain.ListResourcesRequest:
		ForRequest(msg).Respond(ctx, domain.ListResourcesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: state.errNotActive()},
		})
	case domain.CurrentUsageRequest:
		ForRequest(msg).Respond(ctx, domain.CurrentUsageResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: state.errNotActive()},
		})
	default:
		state.logger.Debug(fmt.Sprintf("session@%s: drop", stateName), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SessionActor) errNotActive() error {
	return fmt.Errorf("%w: session is %s", glowmarkt.ErrCannotConnect, state.state)
}

// connect lifecycle

func (state *SessionActor) startConnect(ctx actor.Context, replyTo *actor.PID) {
	state.attempt = sessionAttempts.Add(1)
	if replyTo != nil {
		state.connectWaiters = append(state.connectWaiters, replyTo)
	}
	state.cancelDeadline = state.scheduler.SendOnce(state.connectTimeout, ctx.Self(), connectDeadline{attempt: state.attempt})
	state.become(SessionAuthenticatingState{
		actor: state,
	}.OnEnter(ctx))
}

func (state *SessionActor) failConnect(ctx actor.Context, err error) {
	state.stopDeadline()
	switch {
	case errors.Is(err, glowmarkt.ErrInvalidAuth):
		state.logger.Error("session: invalid credentials, reauthentication required", zap.Error(err))
	case errors.Is(err, glowmarkt.ErrNoCadAvailable):
		state.logger.Error("session: no consumer access device on the account", zap.Error(err))
	default:
		state.logger.Warn("session: cannot connect", zap.Error(err))
	}
	if state.transport != nil {
		state.stopTransport(ctx, err, nil)
		return
	}
	state.settle(ctx, err)
}

// stopTransport tears the transport down in the background, bounded by the
// disconnect timeout, and moves to Disconnecting until it reports back.
func (state *SessionActor) stopTransport(ctx actor.Context, connectErr error, replyTo *actor.PID) {
	state.stopDeadline()
	transport := state.transport
	state.transport = nil
	state.brokerConnected = false
	// late transport callbacks belong to the old attempt from now on
	state.attempt = sessionAttempts.Add(1)
	attempt := state.attempt
	timeout := state.disconnectTimeout

	state.become(SessionDisconnectingState{
		actor:      state,
		connectErr: connectErr,
		replyTo:    replyTo,
	})

	if transport == nil {
		ctx.Send(ctx.Self(), transportStopped{attempt: attempt})
		return
	}
	NewBackgroundTask(ctx, func(_ context.Context) (*transportStopped, error) {
		err := transport.Disconnect(timeout)
		return &transportStopped{attempt: attempt, timedOut: err != nil, err: err}, nil
	}).WithTimeout(timeout + disconnectGrace).Recover(func(err error) transportStopped {
		return transportStopped{attempt: attempt, timedOut: true, err: err}
	}).PipeTo(ctx.Self())
}

// settle answers pending Connect callers and returns to Idle.
func (state *SessionActor) settle(ctx actor.Context, connectErr error) {
	state.attempt = sessionAttempts.Add(1)
	for _, waiter := range state.connectWaiters {
		if connectErr != nil {
			RespondTo(ctx, waiter, domain.SessionConnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: connectErr},
			})
		} else {
			RespondTo(ctx, waiter, domain.SessionConnectResponse{HardwareId: state.hardwareId})
		}
	}
	state.connectWaiters = nil
	state.token = ""
	state.hardwareId = ""
	state.brokerConnected = false
	state.become(SessionIdleState{
		actor: state,
	})
	state.stash.UnstashAll(ctx)
}

func (state *SessionActor) stopDeadline() {
	if state.cancelDeadline != nil {
		state.cancelDeadline()
		state.cancelDeadline = nil
	}
}

// transportEvents turns transport callbacks into mailbox messages. Callbacks
// run on transport goroutines and never touch the actor state.
func (state *SessionActor) transportEvents(ctx actor.Context, attempt uint64) port.TransportEvents {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	return port.TransportEvents{
		OnConnected: func() {
			root.Send(self, transportConnected{attempt: attempt})
		},
		OnConnectFailed: func(err error) {
			root.Send(self, transportConnectFailed{attempt: attempt, err: err})
		},
		OnConnectionLost: func(err error) {
			root.Send(self, transportConnectionLost{attempt: attempt, err: err})
		},
		OnMessage: func(topic string, payload []byte) {
			root.Send(self, telemetryMessage{attempt: attempt, topic: topic, payload: payload})
		},
	}
}

// active session work

func (state *SessionActor) handleTelemetry(msg telemetryMessage) {
	payload, err := glowmarkt.Decode(msg.payload)
	var readings glowmarkt.Readings
	if err == nil {
		readings, err = glowmarkt.ToReadings(payload)
	}
	if err != nil {
		state.malformedMessages++
		state.logger.Warn("session@active malformed telemetry", zap.String("topic", msg.topic), zap.Error(err))
		return
	}
	state.messagesReceived++
	state.readings = readings
	state.listeners.Notify(domain.TelemetryUpdate{
		Payload:  payload,
		Readings: readings,
	}, state.logger)
}

func (state *SessionActor) listResources(ctx actor.Context, replyTo *actor.PID) {
	act := state
	token := state.token
	NewBackgroundTask(ctx, func(c context.Context) (*domain.ListResourcesResponse, error) {
		resources, err := act.restClient.ListResources(c, act.creds.ApplicationId, token)
		if err != nil {
			return nil, err
		}
		return &domain.ListResourcesResponse{Resources: resources}, nil
	}).WithTimeout(state.requestTimeout).Recover(func(err error) domain.ListResourcesResponse {
		return domain.ListResourcesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: glowmarkt.AsConnectError(err)},
		}
	}).PipeTo(replyTo)
}

func (state *SessionActor) currentUsage(ctx actor.Context, resourceId string, replyTo *actor.PID) {
	act := state
	token := state.token
	NewBackgroundTask(ctx, func(c context.Context) (*domain.CurrentUsageResponse, error) {
		usage, err := act.restClient.CurrentUsage(c, act.creds.ApplicationId, token, resourceId)
		if err != nil {
			return nil, err
		}
		return &domain.CurrentUsageResponse{Usage: usage}, nil
	}).WithTimeout(state.requestTimeout).Recover(func(err error) domain.CurrentUsageResponse {
		return domain.CurrentUsageResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: glowmarkt.AsConnectError(err)},
		}
	}).PipeTo(replyTo)
}

func (state *SessionActor) info() domain.SessionInfo {
	return domain.SessionInfo{
		State:             state.state,
		HardwareId:        state.hardwareId,
		Authenticated:     state.token != "",
		BrokerConnected:   state.brokerConnected,
		MessagesReceived:  state.messagesReceived,
		MalformedMessages: state.malformedMessages,
		Listeners:         state.listeners.Len(),
	}
}

func millisOr(millis uint32, def time.Duration) time.Duration {
	if millis == 0 {
		return def
	}
	return time.Duration(millis) * time.Millisecond
}

// ConnectCallTimeout bounds a SessionConnectRequest from the caller side. The
// session answers only after its own deadline and transport teardown.
func ConnectCallTimeout(cfg *config.Config) time.Duration {
	return millisOr(cfg.SessionConfig.ConnectTimeoutMillis, DEFAULT_CONNECT_TIMEOUT) +
		millisOr(cfg.SessionConfig.DisconnectTimeoutMillis, DEFAULT_DISCONNECT_TIMEOUT) + disconnectGrace
}

// DisconnectCallTimeout bounds a SessionDisconnectRequest from the caller side.
func DisconnectCallTimeout(cfg *config.Config) time.Duration {
	return millisOr(cfg.SessionConfig.DisconnectTimeoutMillis, DEFAULT_DISCONNECT_TIMEOUT) + 2*disconnectGrace
}
