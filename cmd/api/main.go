package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/glow2mqtt/internal/adapter/actor"
	"github.com/berfenger/glow2mqtt/internal/adapter/glow"
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/internal/core/actor"
	"github.com/berfenger/glow2mqtt/internal/server"
	"github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// application id of the Bright app, accepted by the Glowmarkt API for third parties
	DEFAULT_APPLICATION_ID = "b0f1b774-a586-4f72-9edd-27ead8aa7a8d"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, sessionActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// stopping the master tears the session down
	if err := ctx.PoisonFuture(pid).Wait(); err != nil {
		logger.Warn("master did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => GLOW2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("GLOW2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("glow2mqtt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check credentials and bounds
	if cfg.Glow.Username == "" || cfg.Glow.Password == "" {
		return nil, errors.New("config params glow.username and glow.password are required")
	}
	if cfg.SessionConfig.ConnectTimeoutMillis < 1000 {
		return nil, errors.New("config param session.connect_timeout_millis should be >= 1000")
	}
	if cfg.SessionConfig.RetryMinBackoffMillis == 0 || cfg.SessionConfig.RetryMinBackoffMillis > cfg.SessionConfig.RetryMaxBackoffMillis {
		return nil, errors.New("config param session.retry_min_backoff_millis should be > 0 and <= session.retry_max_backoff_millis")
	}
	if cfg.MonitorConfig.UsagePollIntervalMillis > 0 && cfg.MonitorConfig.UsagePollIntervalMillis < 10000 {
		return nil, errors.New("config param monitor.usage_poll_interval_millis should be 0 (disabled) or >= 10000")
	}

	return &cfg, nil
}

func sessionActorProvider(cfg *config.Config, logger *zap.Logger) actor.SessionActorProvider {
	creds := glowmarkt.Credentials{
		Username:      cfg.Glow.Username,
		Password:      cfg.Glow.Password,
		ApplicationId: cfg.Glow.ApplicationId,
	}
	requestTimeout := time.Duration(cfg.SessionConfig.RequestTimeoutMillis) * time.Millisecond
	restClient := glowmarkt.NewClient(cfg.Glow.ApiBaseURL, requestTimeout)
	transportProvider := glow.NewMQTTTransportProvider(cfg, logger)
	return func() *actor.SessionActor {
		return actor.NewSessionActor(cfg, creds, restClient, transportProvider, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("glow.username", "")
	viper.SetDefault("glow.password", "")
	viper.SetDefault("glow.application_id", DEFAULT_APPLICATION_ID)
	viper.SetDefault("glow.api_base_url", glowmarkt.DEFAULT_BASE_URL)
	viper.SetDefault("glow.mqtt_host", glowmarkt.DEFAULT_MQTT_HOST)
	viper.SetDefault("glow.mqtt_port", glowmarkt.DEFAULT_MQTT_PORT)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "glow2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("session.connect_timeout_millis", 10000)
	viper.SetDefault("session.disconnect_timeout_millis", 3000)
	viper.SetDefault("session.request_timeout_millis", 5000)
	viper.SetDefault("session.retry_min_backoff_millis", 1000)
	viper.SetDefault("session.retry_max_backoff_millis", 300000)
	viper.SetDefault("monitor.usage_poll_interval_millis", 0)
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.Glow.Password = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
