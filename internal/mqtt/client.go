package mqtt

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/glow2mqtt/internal/config"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "ON"
	MQTT_PAYLOAD_OFF     = "OFF"
)

// OptsFromConfig builds the options for the local broker the bridge publishes to.
func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(clientId("glow2mqtt"))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

// GlowOpts builds the options for the Glowmarkt telemetry broker. The broker
// accepts the same credentials as the REST API.
func GlowOpts(host string, port int, creds glowmarkt.Credentials, connectRetryInterval time.Duration) *mqtt.ClientOptions {
	if host == "" {
		host = glowmarkt.DEFAULT_MQTT_HOST
	}
	if port == 0 {
		port = glowmarkt.DEFAULT_MQTT_PORT
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID(clientId("glow"))
	opts.SetUsername(creds.Username)
	opts.SetPassword(creds.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetOrderMatters(true)
	return opts
}

func CreateMQTTClient(opts *mqtt.ClientOptions, baseTopic string, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:    mqtt.NewClient(opts),
		baseTopic: baseTopic,
	}
}

type MQTTClient struct {
	client    mqtt.Client
	baseTopic string
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic)
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic, sensorId)
}

func (c *MQTTClient) BinarySensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", c.baseTopic, sensorId)
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go waitToken(token, "publish", continuation, timeout)
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go waitToken(token, "subscribe", continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go waitToken(token, "unsubscribe", continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go waitToken(token, "connect", continuation, timeout)
}

// Disconnect waits up to timeout for in-flight work and stops the network loop.
func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

// ErrTimeout is reported when a token does not complete in time. The
// operation itself may still complete later.
var ErrTimeout = errors.New("MQTT operation timed out")

func waitToken(token mqtt.Token, op string, continuation func(error), timeout time.Duration) {
	didTO := token.WaitTimeout(timeout)
	if continuation == nil {
		return
	}
	if !didTO {
		continuation(fmt.Errorf("%w: %s", ErrTimeout, op))
	} else {
		continuation(token.Error())
	}
}

func clientId(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
