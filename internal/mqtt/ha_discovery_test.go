package mqtt

import (
	"testing"

	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmartMeterDiscoveryMessages(t *testing.T) {

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(OptsFromConfig(&cfg), cfg.MQTT.BaseTopic, nil, nil)

	meter := domain.SmartMeterDevice("ABCDEF012345")
	sensors := domain.SmartMeterSensors(meter)
	require.Len(t, sensors, 4)

	gas := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal(t, "glow2mqtt/sensor/gas_consumption/state", gas.StateTopic)
	assert.Equal(t, "glowabcdef012345_gas_consumption", gas.UniqueId)
	assert.Equal(t, "m³", gas.UnitOfMeasurement)
	assert.Equal(t, "gas", gas.DeviceClass)
	assert.Equal(t, "total_increasing", gas.StateClass)
	assert.Equal(t, []string{"glowabcdef012345"}, gas.Device.Id)
	assert.Equal(t, "Hildebrand", gas.Device.Manufacturer)
	assert.Equal(t, "Smart Meter", gas.Device.Name)
	assert.Equal(t, "glow2mqtt/bridge/state", gas.AvTopic)
	assert.Equal(t, "homeassistant/sensor/glowabcdef012345/gas_consumption/config",
		HADiscoverySensorTopic(cfg.MQTT.HADiscoveryTopic, sensors[0]))

	power := GenericSensorToHADiscoveryMessage(client, sensors[1])
	assert.Equal(t, "W", power.UnitOfMeasurement)
	assert.Equal(t, "measurement", power.StateClass)

	energy := GenericSensorToHADiscoveryMessage(client, sensors[2])
	assert.Equal(t, "kWh", energy.UnitOfMeasurement)
	assert.Equal(t, "energy", energy.DeviceClass)

	connected := GenericSensorToHADiscoveryMessage(client, sensors[3])
	assert.Equal(t, "glow2mqtt/binary_sensor/broker_connected/state", connected.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ON, connected.PayloadOn)
}

func TestBridgeDiscoveryMessage(t *testing.T) {

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(OptsFromConfig(&cfg), cfg.MQTT.BaseTopic, nil, nil)

	bridge := domain.BridgeSensors(domain.BridgeDevice(cfg.MQTT.BaseTopic))
	require.Len(t, bridge, 1)

	msg := GenericSensorToHADiscoveryMessage(client, bridge[0])
	assert.Equal(t, "glow2mqtt/bridge/state", msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(t, MQTT_PAYLOAD_OFFLINE, msg.PayloadOff)
	assert.Empty(t, msg.AvTopic)
}
