package util

import (
	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Glow: config.GlowConfig{
			Username:      glowmarkt.TEST_USERNAME,
			Password:      glowmarkt.TEST_PASSWORD,
			ApplicationId: "b0f1b774-a586-4f72-9edd-27ead8aa7a8d",
			ApiBaseURL:    glowmarkt.DEFAULT_BASE_URL,
			MQTTHost:      "glowmqtt.energyhive.com",
			MQTTPort:      1883,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "glow2mqtt",
			HADiscoveryTopic: "homeassistant",
		},
		SessionConfig: config.SessionConfig{
			ConnectTimeoutMillis:    2000,
			DisconnectTimeoutMillis: 500,
			RequestTimeoutMillis:    1000,
			RetryMinBackoffMillis:   200,
			RetryMaxBackoffMillis:   1000,
		},
		MonitorConfig: config.MonitorConfig{
			UsagePollIntervalMillis: 0,
		},
		Port: 8080,
	}
}
