package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/glow2mqtt/internal/adapter/glow"
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/core/port"
	"github.com/berfenger/glow2mqtt/internal/util"
	"github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testElectricityPayload = `{"elecMtr":{"0702":{
		"00":{"00":"0003E8"},
		"03":{"01":"000001","02":"0003E8"},
		"04":{"00":"0001F4"}
	}}}`
	testGasPayload = `{"gasMtr":{"0702":{"0C":{"01":"00000C"}}}}`
)

type sessionFixture struct {
	system    *actor.ActorSystem
	root      *actor.RootContext
	pid       *actor.PID
	rest      *glowmarkt.TestRestClient
	transport *glow.TestTransport
}

func newSessionFixture(t *testing.T, rest *glowmarkt.TestRestClient, transport *glow.TestTransport, mutate func(cfg *config.Config)) *sessionFixture {
	cfg := util.LoadTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	creds := glowmarkt.Credentials{
		Username:      cfg.Glow.Username,
		Password:      cfg.Glow.Password,
		ApplicationId: cfg.Glow.ApplicationId,
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSessionActor(&cfg, creds, rest, glow.NewTestTransportProvider(transport), logger)
	})
	pid := as.Root.Spawn(props)

	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})

	return &sessionFixture{
		system:    as,
		root:      as.Root,
		pid:       pid,
		rest:      rest,
		transport: transport,
	}
}

func (f *sessionFixture) connect() (*domain.SessionConnectResponse, error) {
	res, err := f.root.RequestFuture(f.pid, domain.SessionConnectRequest{}, 5*time.Second).Result()
	if err != nil {
		return nil, err
	}
	resp := res.(domain.SessionConnectResponse)
	return &resp, resp.GetResponseError()
}

func (f *sessionFixture) disconnect(t *testing.T) domain.SessionDisconnectResponse {
	res, err := f.root.RequestFuture(f.pid, domain.SessionDisconnectRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.SessionDisconnectResponse)
}

func (f *sessionFixture) info(t *testing.T) domain.SessionInfo {
	res, err := f.root.RequestFuture(f.pid, domain.GetSessionInfoRequest{}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.GetSessionInfoResponse).Info
}

func (f *sessionFixture) readings(t *testing.T) glowmarkt.Readings {
	res, err := f.root.RequestFuture(f.pid, domain.GetReadingsRequest{}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.GetReadingsResponse).Readings
}

func (f *sessionFixture) register(t *testing.T, listener domain.Listener) domain.ListenerHandle {
	res, err := f.root.RequestFuture(f.pid, domain.RegisterListenerRequest{Listener: listener}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.RegisterListenerResponse).Handle
}

func (f *sessionFixture) waitMessages(t *testing.T, received uint64, malformed uint64) {
	assert.Eventually(t, func() bool {
		info := f.info(t)
		return info.MessagesReceived == received && info.MalformedMessages == malformed
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSessionConnect(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	resp, err := f.connect()
	require.NoError(t, err)
	assert.Equal(t, glowmarkt.TEST_HARDWARE_ID, resp.HardwareId)
	assert.Equal(t, "SMART/+/"+glowmarkt.TEST_HARDWARE_ID, f.transport.Topic())

	info := f.info(t)
	assert.Equal(t, domain.SessionActive, info.State)
	assert.True(t, info.Authenticated)
	assert.True(t, info.BrokerConnected)
	assert.Equal(t, glowmarkt.TEST_HARDWARE_ID, info.HardwareId)
}

func TestSessionConnectWhileActive(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.NoError(t, err)

	resp, err := f.connect()
	require.NoError(t, err)
	assert.Equal(t, glowmarkt.TEST_HARDWARE_ID, resp.HardwareId)
	assert.Equal(t, int32(1), f.rest.AuthCalls.Load(), "no new authentication")
	assert.Equal(t, int32(1), f.transport.Connects.Load(), "no new transport")
}

func TestSessionConcurrentConnectsShareAttempt(t *testing.T) {

	rest := &glowmarkt.TestRestClient{Delay: 100 * time.Millisecond}
	f := newSessionFixture(t, rest, &glow.TestTransport{AckConnect: true}, nil)

	first := f.root.RequestFuture(f.pid, domain.SessionConnectRequest{}, 5*time.Second)
	second := f.root.RequestFuture(f.pid, domain.SessionConnectRequest{}, 5*time.Second)

	for _, fut := range []*actor.Future{first, second} {
		res, err := fut.Result()
		require.NoError(t, err)
		assert.NoError(t, domain.ResponseErrorOf(res, nil))
	}
	assert.Equal(t, int32(1), rest.AuthCalls.Load())
}

func TestSessionConnectInvalidAuth(t *testing.T) {

	rest := &glowmarkt.TestRestClient{AuthErr: glowmarkt.ErrInvalidAuth}
	f := newSessionFixture(t, rest, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, glowmarkt.ErrInvalidAuth)
	assert.NotErrorIs(t, err, glowmarkt.ErrCannotConnect)
	assert.False(t, glowmarkt.IsRetryable(err))

	info := f.info(t)
	assert.Equal(t, domain.SessionIdle, info.State)
	assert.False(t, info.Authenticated)
	assert.Equal(t, int32(0), f.transport.Connects.Load())
}

func TestSessionConnectNoCad(t *testing.T) {

	hardwareId := "FFFF"
	rest := &glowmarkt.TestRestClient{
		Devices: []glowmarkt.Device{{
			DeviceId:     "other",
			DeviceTypeId: "00000000-0000-0000-0000-000000000000",
			HardwareId:   &hardwareId,
		}},
	}
	f := newSessionFixture(t, rest, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, glowmarkt.ErrNoCadAvailable)
	assert.Equal(t, domain.SessionIdle, f.info(t).State)
	assert.Equal(t, int32(0), f.transport.Connects.Load())
}

func TestSessionConnectRequestTimeout(t *testing.T) {

	rest := &glowmarkt.TestRestClient{Delay: time.Second}
	f := newSessionFixture(t, rest, &glow.TestTransport{AckConnect: true}, func(cfg *config.Config) {
		cfg.SessionConfig.RequestTimeoutMillis = 100
	})

	_, err := f.connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, glowmarkt.ErrCannotConnect)
	assert.True(t, glowmarkt.IsRetryable(err))
}

func TestSessionConnectTimeoutTearsDownTransport(t *testing.T) {

	// broker never acknowledges
	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{}, func(cfg *config.Config) {
		cfg.SessionConfig.ConnectTimeoutMillis = 300
	})

	started := time.Now()
	_, err := f.connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, glowmarkt.ErrCannotConnect)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(started), 300*time.Millisecond)

	assert.False(t, f.transport.Running(), "no transport loop left running")
	assert.Equal(t, int32(1), f.transport.Disconnects.Load())

	info := f.info(t)
	assert.Equal(t, domain.SessionIdle, info.State)
	assert.False(t, info.BrokerConnected)

	// a late ack from the abandoned attempt changes nothing
	f.transport.Ack()
	assert.Equal(t, domain.SessionIdle, f.info(t).State)
}

func TestSessionConnectFailedByTransport(t *testing.T) {

	transport := &glow.TestTransport{ConnectErr: errors.New("not authorized")}
	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, transport, nil)

	_, err := f.connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, glowmarkt.ErrCannotConnect)
	assert.False(t, transport.Running())
}

func TestSessionDisconnectAbortsConnect(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{}, func(cfg *config.Config) {
		cfg.SessionConfig.ConnectTimeoutMillis = 5000
	})

	connectFuture := f.root.RequestFuture(f.pid, domain.SessionConnectRequest{}, 5*time.Second)
	assert.Eventually(t, func() bool {
		return f.info(t).State == domain.SessionConnecting
	}, 2*time.Second, 10*time.Millisecond)

	resp := f.disconnect(t)
	assert.NoError(t, resp.GetResponseError())

	res, err := connectFuture.Result()
	require.NoError(t, err)
	assert.ErrorIs(t, domain.ResponseErrorOf(res, nil), glowmarkt.ErrCannotConnect)
	assert.False(t, f.transport.Running())
	assert.Equal(t, domain.SessionIdle, f.info(t).State)
}

func TestSessionDisconnect(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.NoError(t, err)

	resp := f.disconnect(t)
	assert.NoError(t, resp.GetResponseError())
	assert.False(t, resp.TimedOut)
	assert.False(t, f.transport.Running())

	info := f.info(t)
	assert.Equal(t, domain.SessionIdle, info.State)
	assert.False(t, info.Authenticated)

	// idle disconnect is a no-op
	resp = f.disconnect(t)
	assert.NoError(t, resp.GetResponseError())
	assert.Equal(t, int32(1), f.transport.Disconnects.Load())

	// reconnect after disconnect
	_, err = f.connect()
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, f.info(t).State)
}

func TestSessionDisconnectTimeoutIsNotAnError(t *testing.T) {

	transport := &glow.TestTransport{AckConnect: true, DisconnectDelay: 2 * time.Second}
	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, transport, func(cfg *config.Config) {
		cfg.SessionConfig.DisconnectTimeoutMillis = 200
	})

	_, err := f.connect()
	require.NoError(t, err)

	resp := f.disconnect(t)
	assert.NoError(t, resp.GetResponseError())
	assert.True(t, resp.TimedOut)
	assert.Equal(t, domain.SessionIdle, f.info(t).State)
}

func TestSessionListenerFanOut(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	var mu sync.Mutex
	calls := []int{}
	for i := 1; i <= 3; i++ {
		n := i
		f.register(t, func(update domain.TelemetryUpdate) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, n)
		})
	}

	_, err := f.connect()
	require.NoError(t, err)

	f.transport.Emit([]byte(testElectricityPayload))
	f.waitMessages(t, 1, 0)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, calls, "each listener once, in registration order")
	mu.Unlock()

	readings := f.readings(t)
	require.NotNil(t, readings.EnergyConsumption)
	assert.InDelta(t, 1.0, *readings.EnergyConsumption, 1e-9)
	require.NotNil(t, readings.PowerConsumption)
	assert.Equal(t, int64(500), *readings.PowerConsumption)
	assert.Nil(t, readings.GasConsumption)
}

func TestSessionUnregisterListener(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	var mu sync.Mutex
	count := 0
	handle := f.register(t, func(update domain.TelemetryUpdate) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	_, err := f.connect()
	require.NoError(t, err)

	f.transport.Emit([]byte(testGasPayload))
	f.waitMessages(t, 1, 0)

	res, err := f.root.RequestFuture(f.pid, domain.UnregisterListenerRequest{Handle: handle}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.UnregisterListenerResponse).Removed)

	res, err = f.root.RequestFuture(f.pid, domain.UnregisterListenerRequest{Handle: handle}, time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.UnregisterListenerResponse).Removed)

	f.transport.Emit([]byte(testGasPayload))
	f.waitMessages(t, 2, 0)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
	assert.Equal(t, 0, f.info(t).Listeners)
}

func TestSessionListenerPanicDoesNotStopSession(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	var mu sync.Mutex
	delivered := 0
	f.register(t, func(update domain.TelemetryUpdate) {
		panic("listener failure")
	})
	f.register(t, func(update domain.TelemetryUpdate) {
		mu.Lock()
		defer mu.Unlock()
		delivered++
	})

	_, err := f.connect()
	require.NoError(t, err)

	f.transport.Emit([]byte(testGasPayload))
	f.transport.Emit([]byte(testGasPayload))
	f.waitMessages(t, 2, 0)

	mu.Lock()
	assert.Equal(t, 2, delivered)
	mu.Unlock()
	assert.Equal(t, domain.SessionActive, f.info(t).State)
}

func TestSessionMalformedMessageKeepsSession(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.NoError(t, err)

	f.transport.Emit([]byte("not json"))
	f.transport.Emit([]byte(`{"elecMtr":{"0702":{"00":{"00":"0003E8"},"03":{"01":"01","02":"00"}}}}`))
	f.transport.Emit([]byte(testGasPayload))
	f.waitMessages(t, 1, 2)

	assert.Equal(t, domain.SessionActive, f.info(t).State)
	readings := f.readings(t)
	require.NotNil(t, readings.GasConsumption)
	assert.InDelta(t, 12.0, *readings.GasConsumption, 1e-9)
}

func TestSessionReadingsSnapshotIsOverwritten(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.NoError(t, err)

	assert.False(t, f.readings(t).HasAny(), "no readings before the first message")

	f.transport.Emit([]byte(testElectricityPayload))
	f.transport.Emit([]byte(testGasPayload))
	f.waitMessages(t, 2, 0)

	readings := f.readings(t)
	assert.NotNil(t, readings.GasConsumption)
	assert.Nil(t, readings.PowerConsumption, "last message wins")
	assert.Nil(t, readings.EnergyConsumption, "last message wins")
}

func TestSessionConnectionLostStaysActive(t *testing.T) {

	f := newSessionFixture(t, &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true}, nil)

	_, err := f.connect()
	require.NoError(t, err)

	f.transport.Drop(errors.New("EOF"))
	assert.Eventually(t, func() bool {
		return !f.info(t).BrokerConnected
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.SessionActive, f.info(t).State)

	f.transport.Ack()
	assert.Eventually(t, func() bool {
		return f.info(t).BrokerConnected
	}, time.Second, 10*time.Millisecond)

	f.transport.Emit([]byte(testGasPayload))
	f.waitMessages(t, 1, 0)
}

func TestSessionResourceQueries(t *testing.T) {

	rest := &glowmarkt.TestRestClient{
		Resources: []glowmarkt.Resource{{ResourceId: "r1", Name: "electricity consumption", Classifier: "electricity.consumption"}},
		Usage: map[string]glowmarkt.CurrentUsage{
			"r1": {ResourceId: "r1", Units: "W", Data: [][]float64{{1700000000, 420}}},
		},
	}
	f := newSessionFixture(t, rest, &glow.TestTransport{AckConnect: true}, nil)

	// not available before the session is active
	res, err := f.root.RequestFuture(f.pid, domain.ListResourcesRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, domain.ResponseErrorOf(res, nil), glowmarkt.ErrCannotConnect)

	_, err = f.connect()
	require.NoError(t, err)

	res, err = f.root.RequestFuture(f.pid, domain.ListResourcesRequest{}, time.Second).Result()
	require.NoError(t, err)
	resources := res.(domain.ListResourcesResponse)
	require.NoError(t, resources.GetResponseError())
	assert.Len(t, resources.Resources, 1)

	res, err = f.root.RequestFuture(f.pid, domain.CurrentUsageRequest{ResourceId: "r1"}, time.Second).Result()
	require.NoError(t, err)
	usage := res.(domain.CurrentUsageResponse)
	require.NoError(t, usage.GetResponseError())
	_, value, ok := usage.Usage.Latest()
	assert.True(t, ok)
	assert.Equal(t, 420.0, value)

	res, err = f.root.RequestFuture(f.pid, domain.CurrentUsageRequest{ResourceId: "missing"}, time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, domain.ResponseErrorOf(res, nil), glowmarkt.ErrInvalidAuth)
}

type sessionCrash struct{}

func crashOnSessionCrash(next actor.ReceiverFunc) actor.ReceiverFunc {
	return func(c actor.ReceiverContext, env *actor.MessageEnvelope) {
		if _, ok := env.Message.(sessionCrash); ok {
			panic("session crashed")
		}
		next(c, env)
	}
}

// eventsTransport keeps the events handed to Connect so they can be replayed.
type eventsTransport struct {
	*glow.TestTransport
	events port.TransportEvents
}

func (e *eventsTransport) Connect(topic string, events port.TransportEvents) {
	e.events = events
	e.TestTransport.Connect(topic, events)
}

func TestSessionRestartReleasesTransport(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	var mu sync.Mutex
	var transports []*eventsTransport
	provider := func(_ glowmarkt.Credentials) port.TelemetryTransport {
		mu.Lock()
		defer mu.Unlock()
		tr := &eventsTransport{TestTransport: &glow.TestTransport{AckConnect: true}}
		transports = append(transports, tr)
		return tr
	}
	transportAt := func(i int) *eventsTransport {
		mu.Lock()
		defer mu.Unlock()
		return transports[i]
	}

	creds := glowmarkt.Credentials{
		Username:      cfg.Glow.Username,
		Password:      cfg.Glow.Password,
		ApplicationId: cfg.Glow.ApplicationId,
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSessionActor(&cfg, creds, &glowmarkt.TestRestClient{}, provider, logger)
	}, actor.WithReceiverMiddleware(crashOnSessionCrash))
	pid := as.Root.Spawn(props)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	f := &sessionFixture{system: as, root: as.Root, pid: pid}

	_, err := f.connect()
	require.NoError(err)
	first := transportAt(0)
	require.True(first.Running())

	// the supervisor restarts the session, the old transport must go away
	as.Root.Send(pid, sessionCrash{})
	assert.Eventually(t, func() bool {
		return !first.Running()
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), first.Disconnects.Load())

	_, err = f.connect()
	require.NoError(err)
	second := transportAt(1)

	// callbacks of the previous incarnation are not taken for the new one
	first.events.OnMessage(second.Topic(), []byte(testElectricityPayload))
	second.Emit([]byte(testGasPayload))

	var readings glowmarkt.Readings
	assert.Eventually(t, func() bool {
		res, err := f.root.RequestFuture(pid, domain.GetReadingsRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		readings = res.(domain.GetReadingsResponse).Readings
		return readings.GasConsumption != nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Nil(t, readings.PowerConsumption)
	assert.Nil(t, readings.EnergyConsumption)
}
