package service

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/glow2mqtt/internal/adapter/glow"
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/util"
	"github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	electricityPayload = `{"elecMtr":{"0702":{"00":{"00":"0003E8"},"03":{"01":"000001","02":"0003E8"},"04":{"00":"0001F4"}}}}`
)

func newHost(t *testing.T, cfg config.Config, rest *glowmarkt.TestRestClient, transport *glow.TestTransport) *SessionHost {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)
	return NewSessionHost(as, &cfg, rest, glow.NewTestTransportProvider(transport), logger)
}

func testCredentials() glowmarkt.Credentials {
	return glowmarkt.Credentials{
		Username:      glowmarkt.TEST_USERNAME,
		Password:      glowmarkt.TEST_PASSWORD,
		ApplicationId: "b0f1b774-a586-4f72-9edd-27ead8aa7a8d",
	}
}

func TestSetupAndTeardown(t *testing.T) {

	require := require.New(t)

	transport := &glow.TestTransport{AckConnect: true}
	host := newHost(t, util.LoadTestConfig(), &glowmarkt.TestRestClient{}, transport)

	session, err := host.Setup(context.Background(), testCredentials())
	require.NoError(err)
	assert.Equal(t, glowmarkt.TEST_HARDWARE_ID, session.HardwareId())

	// nothing received yet
	readings, err := session.CurrentReadings()
	require.NoError(err)
	assert.Nil(t, readings.PowerConsumption)
	assert.Nil(t, readings.EnergyConsumption)
	assert.Nil(t, readings.GasConsumption)

	updates := make(chan glowmarkt.Readings, 1)
	handle, err := session.RegisterListener(func(update domain.TelemetryUpdate) {
		updates <- update.Readings
	})
	require.NoError(err)

	transport.Emit([]byte(electricityPayload))
	select {
	case r := <-updates:
		require.NotNil(r.PowerConsumption)
		assert.Equal(t, int64(500), *r.PowerConsumption)
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not invoked")
	}

	readings, err = session.CurrentReadings()
	require.NoError(err)
	require.NotNil(readings.EnergyConsumption)
	assert.InDelta(t, 1.0, *readings.EnergyConsumption, 1e-9)

	removed, err := session.UnregisterListener(handle)
	require.NoError(err)
	assert.True(t, removed)
	removed, err = session.UnregisterListener(handle)
	require.NoError(err)
	assert.False(t, removed)

	require.NoError(session.Teardown(context.Background()))
	assert.False(t, transport.Running())

	// idempotent
	require.NoError(session.Teardown(context.Background()))
	_, err = session.CurrentReadings()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSetupErrorsAreClassified(t *testing.T) {

	t.Run("invalid auth", func(t *testing.T) {
		host := newHost(t, util.LoadTestConfig(), &glowmarkt.TestRestClient{}, &glow.TestTransport{AckConnect: true})
		creds := testCredentials()
		creds.Password = "wrong"
		_, err := host.Setup(context.Background(), creds)
		assert.ErrorIs(t, err, glowmarkt.ErrInvalidAuth)
		assert.NotErrorIs(t, err, glowmarkt.ErrCannotConnect)
	})

	t.Run("no cad", func(t *testing.T) {
		rest := &glowmarkt.TestRestClient{Devices: []glowmarkt.Device{}}
		host := newHost(t, util.LoadTestConfig(), rest, &glow.TestTransport{AckConnect: true})
		_, err := host.Setup(context.Background(), testCredentials())
		assert.ErrorIs(t, err, glowmarkt.ErrNoCadAvailable)
	})

	t.Run("broker never answers", func(t *testing.T) {
		cfg := util.LoadTestConfig()
		cfg.SessionConfig.ConnectTimeoutMillis = 200
		transport := &glow.TestTransport{}
		host := newHost(t, cfg, &glowmarkt.TestRestClient{}, transport)
		_, err := host.Setup(context.Background(), testCredentials())
		assert.ErrorIs(t, err, glowmarkt.ErrCannotConnect)
		assert.False(t, transport.Running(), "no transport left running")
	})

	t.Run("caller deadline", func(t *testing.T) {
		rest := &glowmarkt.TestRestClient{Delay: time.Second}
		host := newHost(t, util.LoadTestConfig(), rest, &glow.TestTransport{AckConnect: true})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := host.Setup(ctx, testCredentials())
		assert.ErrorIs(t, err, glowmarkt.ErrCannotConnect)
	})
}

func TestSetupUsesCallerApplicationId(t *testing.T) {

	rest := &glowmarkt.TestRestClient{}
	host := newHost(t, util.LoadTestConfig(), rest, &glow.TestTransport{AckConnect: true})

	creds := testCredentials()
	creds.ApplicationId = "caller-application-id"
	session, err := host.Setup(context.Background(), creds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Teardown(context.Background()) })

	appIds := rest.AppIds()
	require.NotEmpty(t, appIds)
	for _, appId := range appIds {
		assert.Equal(t, "caller-application-id", appId)
	}
}
