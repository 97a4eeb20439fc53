package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/berfenger/glow2mqtt/internal/adapter/glow"
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/core/service"
	"github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes tell the caller which kind of setup failure happened.
const (
	EXIT_OK = iota
	EXIT_CANNOT_CONNECT
	EXIT_INVALID_AUTH
	EXIT_NO_CAD
	EXIT_CONFIG
)

var osExit = os.Exit

// probe validates a Glowmarkt account: it sets up a session, prints the
// telemetry received for a while and tears the session down.
func main() {
	pflag.Duration("duration", 30*time.Second, "how long to listen for telemetry")
	pflag.Bool("debug", false, "debug logging")
	pflag.Parse()

	viper.SetEnvPrefix("glow2mqtt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("glow.application_id", "b0f1b774-a586-4f72-9edd-27ead8aa7a8d")
	viper.SetDefault("glow.api_base_url", glowmarkt.DEFAULT_BASE_URL)
	viper.SetDefault("glow.mqtt_host", glowmarkt.DEFAULT_MQTT_HOST)
	viper.SetDefault("glow.mqtt_port", glowmarkt.DEFAULT_MQTT_PORT)
	viper.SetDefault("glow.username", "")
	viper.SetDefault("glow.password", "")
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		panic(err)
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	cfg.LogLevel = zap.InfoLevel
	if viper.GetBool("debug") {
		cfg.LogLevel = zap.DebugLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())

	code := EXIT_CONFIG
	if cfg.Glow.Username == "" || cfg.Glow.Password == "" {
		logger.Error("GLOW2MQTT_GLOW_USERNAME and GLOW2MQTT_GLOW_PASSWORD are required")
	} else {
		code = run(&cfg, viper.GetDuration("duration"), logger)
	}
	exit(logger, code)
}

// exit flushes the logger before leaving with code. os.Exit skips deferred calls.
func exit(logger *zap.Logger, code int) {
	_ = logger.Sync()
	osExit(code)
}

func run(cfg *config.Config, duration time.Duration, logger *zap.Logger) int {
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restClient := glowmarkt.NewClient(cfg.Glow.ApiBaseURL, 10*time.Second)
	host := service.NewSessionHost(as, cfg, restClient, glow.NewMQTTTransportProvider(cfg, logger), logger)

	session, err := host.Setup(ctx, glowmarkt.Credentials{
		Username:      cfg.Glow.Username,
		Password:      cfg.Glow.Password,
		ApplicationId: cfg.Glow.ApplicationId,
	})
	switch {
	case err == nil:
	case errors.Is(err, glowmarkt.ErrInvalidAuth):
		logger.Error("credentials rejected", zap.Error(err))
		return EXIT_INVALID_AUTH
	case errors.Is(err, glowmarkt.ErrNoCadAvailable):
		logger.Error("no Glow CAD on this account", zap.Error(err))
		return EXIT_NO_CAD
	default:
		logger.Error("cannot connect", zap.Error(err))
		return EXIT_CANNOT_CONNECT
	}

	_, err = session.RegisterListener(func(update domain.TelemetryUpdate) {
		logger.Info("telemetry", readingsFields(update.Readings)...)
	})
	if err != nil {
		logger.Error("could not register listener", zap.Error(err))
	}

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}

	if readings, err := session.CurrentReadings(); err == nil {
		logger.Info("last readings", readingsFields(readings)...)
	}
	if info, err := session.Info(); err == nil {
		logger.Info("session",
			zap.String("hardwareId", info.HardwareId),
			zap.Uint64("messages", info.MessagesReceived),
			zap.Uint64("malformed", info.MalformedMessages))
	}

	teardownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Teardown(teardownCtx); err != nil {
		logger.Warn("teardown", zap.Error(err))
	}
	return EXIT_OK
}

func readingsFields(r glowmarkt.Readings) []zap.Field {
	var fields []zap.Field
	if r.GasConsumption != nil {
		fields = append(fields, zap.Float64("gas_m3", *r.GasConsumption))
	}
	if r.PowerConsumption != nil {
		fields = append(fields, zap.Int64("power_w", *r.PowerConsumption))
	}
	if r.EnergyConsumption != nil {
		fields = append(fields, zap.Float64("energy_kwh", *r.EnergyConsumption))
	}
	return fields
}
