package mqtt

import (
	"strings"
	"testing"
	"time"

	"github.com/berfenger/glow2mqtt/internal/util"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(OptsFromConfig(&cfg), cfg.MQTT.BaseTopic, nil, nil)

	assert.Equal("glow2mqtt/bridge/state", client.BridgeStateTopic())
	assert.Equal("glow2mqtt/sensor/power_consumption/state", client.SensorStateTopic("power_consumption"))
	assert.Equal("glow2mqtt/binary_sensor/broker/state", client.BinarySensorStateTopic("broker"))
	assert.False(client.IsConnected())
}

func TestOptsFromConfig(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	opts := OptsFromConfig(&cfg)

	assert.True(opts.WillEnabled)
	assert.True(opts.WillRetained)
	assert.Equal("glow2mqtt/bridge/state", opts.WillTopic)
	assert.Equal([]byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
	assert.True(strings.HasPrefix(opts.ClientID, "glow2mqtt_"))
}

func TestGlowOpts(t *testing.T) {

	assert := assert.New(t)

	creds := glowmarkt.Credentials{Username: "user", Password: "pass"}
	opts := GlowOpts("", 0, creds, time.Second)

	assert.Len(opts.Servers, 1)
	assert.Equal("glowmqtt.energyhive.com:1883", opts.Servers[0].Host)
	assert.Equal("user", opts.Username)
	assert.Equal("pass", opts.Password)
	assert.True(opts.AutoReconnect)
	assert.True(opts.ConnectRetry)

	other := GlowOpts("", 0, creds, time.Second)
	assert.NotEqual(opts.ClientID, other.ClientID, "client ids are unique")
}
