package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Glow     GlowConfig `mapstructure:"glow"`
	MQTT     MQTTConfig `mapstructure:"mqtt"`

	SessionConfig SessionConfig `mapstructure:"session"`
	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type GlowConfig struct {
	Username      string
	Password      string
	ApplicationId string `mapstructure:"application_id"`
	ApiBaseURL    string `mapstructure:"api_base_url"`
	MQTTHost      string `mapstructure:"mqtt_host"`
	MQTTPort      int    `mapstructure:"mqtt_port"`
}

type SessionConfig struct {
	ConnectTimeoutMillis    uint32 `mapstructure:"connect_timeout_millis"`
	DisconnectTimeoutMillis uint32 `mapstructure:"disconnect_timeout_millis"`
	RequestTimeoutMillis    uint32 `mapstructure:"request_timeout_millis"`
	RetryMinBackoffMillis   uint32 `mapstructure:"retry_min_backoff_millis"`
	RetryMaxBackoffMillis   uint32 `mapstructure:"retry_max_backoff_millis"`
}

type MonitorConfig struct {
	UsagePollIntervalMillis uint32 `mapstructure:"usage_poll_interval_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
