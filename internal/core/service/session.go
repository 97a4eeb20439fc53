package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sessionactor "github.com/berfenger/glow2mqtt/internal/core/actor"
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/core/port"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DEFAULT_CALL_TIMEOUT = 2 * time.Second
)

var ErrSessionClosed = errors.New("glow session is closed")

// SessionHost builds sessions for a host process. Every session runs as its
// own actor on the host's actor system.
type SessionHost struct {
	system            *actor.ActorSystem
	config            *config.Config
	restClient        glowmarkt.RestClient
	transportProvider port.TelemetryTransportProvider
	logger            *zap.Logger
}

// GlowSession is a connected session as seen by the host. All methods block
// until the session actor answers.
type GlowSession struct {
	system            *actor.ActorSystem
	pid               *actor.PID
	hardwareId        string
	callTimeout       time.Duration
	disconnectTimeout time.Duration
	closed            atomic.Bool
	logger            *zap.Logger
}

func NewSessionHost(system *actor.ActorSystem, cfg *config.Config, restClient glowmarkt.RestClient,
	transportProvider port.TelemetryTransportProvider, logger *zap.Logger) *SessionHost {
	return &SessionHost{
		system:            system,
		config:            cfg,
		restClient:        restClient,
		transportProvider: transportProvider,
		logger:            logger,
	}
}

// Setup authenticates, discovers the CAD and waits until telemetry is
// subscribed. On failure the session is stopped and the classified connect
// error is returned.
func (h *SessionHost) Setup(ctx context.Context, creds glowmarkt.Credentials) (*GlowSession, error) {
	props := actor.PropsFromProducer(func() actor.Actor {
		return sessionactor.NewSessionActor(h.config, creds, h.restClient, h.transportProvider, h.logger)
	})
	pid, err := h.system.Root.SpawnNamed(props, fmt.Sprintf("%s-%s", domain.ACTOR_ID_SESSION, uuid.NewString()))
	if err != nil {
		return nil, err
	}

	session := &GlowSession{
		system:            h.system,
		pid:               pid,
		callTimeout:       DEFAULT_CALL_TIMEOUT,
		disconnectTimeout: sessionactor.DisconnectCallTimeout(h.config),
		logger:            h.logger.With(zap.String("session", pid.Id)),
	}

	res, err := session.request(ctx, domain.SessionConnectRequest{}, sessionactor.ConnectCallTimeout(h.config))
	if err != nil {
		session.stop()
		return nil, glowmarkt.AsConnectError(err)
	}
	session.hardwareId = res.(domain.SessionConnectResponse).HardwareId
	session.logger.Info("glow session ready", zap.String("hardwareId", session.hardwareId))
	return session, nil
}

func (s *GlowSession) HardwareId() string {
	return s.hardwareId
}

// Teardown disconnects and stops the session. A disconnect that outlives its
// timeout is logged, not returned. Calling Teardown twice is a no-op.
func (s *GlowSession) Teardown(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	defer s.stop()
	res, err := s.request(ctx, domain.SessionDisconnectRequest{}, s.disconnectTimeout)
	if err != nil {
		return err
	}
	if res.(domain.SessionDisconnectResponse).TimedOut {
		s.logger.Warn("glow session transport did not stop in time")
	}
	return nil
}

func (s *GlowSession) RegisterListener(listener domain.Listener) (domain.ListenerHandle, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	res, err := s.request(context.Background(), domain.RegisterListenerRequest{Listener: listener}, s.callTimeout)
	if err != nil {
		return 0, err
	}
	return res.(domain.RegisterListenerResponse).Handle, nil
}

func (s *GlowSession) UnregisterListener(handle domain.ListenerHandle) (bool, error) {
	if s.closed.Load() {
		return false, ErrSessionClosed
	}
	res, err := s.request(context.Background(), domain.UnregisterListenerRequest{Handle: handle}, s.callTimeout)
	if err != nil {
		return false, err
	}
	return res.(domain.UnregisterListenerResponse).Removed, nil
}

// CurrentReadings returns the latest snapshot. Fields never reported stay nil.
func (s *GlowSession) CurrentReadings() (glowmarkt.Readings, error) {
	if s.closed.Load() {
		return glowmarkt.Readings{}, ErrSessionClosed
	}
	res, err := s.request(context.Background(), domain.GetReadingsRequest{}, s.callTimeout)
	if err != nil {
		return glowmarkt.Readings{}, err
	}
	return res.(domain.GetReadingsResponse).Readings, nil
}

func (s *GlowSession) Info() (domain.SessionInfo, error) {
	res, err := s.request(context.Background(), domain.GetSessionInfoRequest{}, s.callTimeout)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return res.(domain.GetSessionInfoResponse).Info, nil
}

// request sends msg and waits for the answer, bounded by timeout and ctx.
// Response errors are returned as errors.
func (s *GlowSession) request(ctx context.Context, msg any, timeout time.Duration) (any, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	type result struct {
		res any
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := s.system.Root.RequestFuture(s.pid, msg, timeout).Result()
		done <- result{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if err := domain.ResponseErrorOf(r.res, nil); err != nil {
			return r.res, err
		}
		return r.res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *GlowSession) stop() {
	s.closed.Store(true)
	if err := s.system.Root.PoisonFuture(s.pid).Wait(); err != nil {
		s.logger.Debug("glow session stop", zap.Error(err))
	}
}
