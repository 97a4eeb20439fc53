package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_GAS_CONSUMPTION     = "gas_consumption"
	SENSOR_ID_POWER_CONSUMPTION   = "power_consumption"
	SENSOR_ID_ENERGY_CONSUMPTION  = "energy_consumption"
	SENSOR_ID_BROKER_CONNECTED    = "broker_connected"
	SENSOR_ID_USAGE_PREFIX        = "usage_"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_GAS              = "gas"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
	SMART_METER_MANUFACTURER      = "Hildebrand"
	SMART_METER_NAME              = "Smart Meter"
	UNIT_CUBIC_METERS             = "m³"
	UNIT_WATT                     = "W"
	UNIT_KILOWATT_HOUR            = "kWh"
	smartMeterDeviceIdPrefix      = "glow"
	bridgeDeviceIdPrefix          = "glow2mqtt_bridge_"
	bridgeDeviceModel             = "glow2mqtt"
	bridgeDeviceManufacturer      = "glow2mqtt"
	sensorIdSanitizePattern       = "[^a-z0-9_]+"
	usageSensorIconFallback       = "mdi:meter-electric"
	usageSensorIconGas            = "mdi:meter-gas"
	usageClassifierGasPrefix      = "gas."
)

var sensorIdSanitizer = regexp.MustCompile(sensorIdSanitizePattern)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           bridgeDeviceIdPrefix + md5HashShort(baseTopic),
		Manufacturer: bridgeDeviceManufacturer,
		Model:        bridgeDeviceModel,
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Glow2MQTT %s", md5HashShort(baseTopic)),
	}
}

// SmartMeterDevice is the meter behind a CAD. Entity ids follow glow<hardwareId>_<key>.
func SmartMeterDevice(hardwareId string) Device {
	return Device{
		Id:           smartMeterDeviceIdPrefix + strings.ToLower(hardwareId),
		Manufacturer: SMART_METER_MANUFACTURER,
		Name:         SMART_METER_NAME,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Bridge state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func SmartMeterSensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Gas consumption, current day
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_GAS_CONSUMPTION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Gas consumption",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_GAS,
		UnitOfMeasurement: UNIT_CUBIC_METERS,
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_GAS_CONSUMPTION),
	})

	// Instantaneous demand
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(meterDevice),
		Id:                SENSOR_ID_POWER_CONSUMPTION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power consumption",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: UNIT_WATT,
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_POWER_CONSUMPTION),
	})

	// Summation delivered
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(meterDevice),
		Id:                SENSOR_ID_ENERGY_CONSUMPTION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy consumption",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: UNIT_KILOWATT_HOUR,
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_ENERGY_CONSUMPTION),
	})

	// Telemetry broker link
	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(meterDevice),
		Id:             SENSOR_ID_BROKER_CONNECTED,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Telemetry connected",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(meterDevice.Id, SENSOR_ID_BROKER_CONNECTED),
	})

	return sensors
}

// UsageSensors describes one diagnostic sensor per polled account resource.
func UsageSensors(meterDevice Device, resources []glowmarkt.Resource) []GenericSensor {
	var sensors []GenericSensor
	for _, r := range resources {
		id := UsageSensorId(r.Classifier)
		icon := usageSensorIconFallback
		if strings.HasPrefix(r.Classifier, usageClassifierGasPrefix) {
			icon = usageSensorIconGas
		}
		sensors = append(sensors, GenericSensor{
			Device:            IdDevice(meterDevice),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Current usage %s", r.Name),
			StateClass:        STATE_CLASS_MEASUREMENT,
			UnitOfMeasurement: r.BaseUnit,
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			Icon:              icon,
			UniqueId:          uniqueId(meterDevice.Id, id),
		})
	}
	return sensors
}

func UsageSensorId(classifier string) string {
	return SENSOR_ID_USAGE_PREFIX + strings.Trim(sensorIdSanitizer.ReplaceAllString(strings.ToLower(classifier), "_"), "_")
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
