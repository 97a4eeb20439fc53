package events

import (
	. "github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"
)

// ReadingsToUpdateEvents emits one event per present reading. Absent
// readings produce nothing so the last published state stays in place.
func ReadingsToUpdateEvents(r glowmarkt.Readings) []any {
	var events []any

	// Gas consumption
	if r.GasConsumption != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_GAS_CONSUMPTION,
			},
			Value:    *r.GasConsumption,
			Decimals: 3,
		})
	}
	// Power consumption
	if r.PowerConsumption != nil {
		events = append(events, IntSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_POWER_CONSUMPTION,
			},
			Value: *r.PowerConsumption,
		})
	}
	// Energy consumption
	if r.EnergyConsumption != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_ENERGY_CONSUMPTION,
			},
			Value:    *r.EnergyConsumption,
			Decimals: 3,
		})
	}

	return events
}

func BrokerConnectedUpdateEvent(connected bool) any {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BROKER_CONNECTED,
		},
		Value: connected,
	}
}

// CurrentUsageUpdateEvent maps the latest point of a resource's usage series.
func CurrentUsageUpdateEvent(resource glowmarkt.Resource, usage *glowmarkt.CurrentUsage) (any, bool) {
	if usage == nil {
		return nil, false
	}
	_, value, ok := usage.Latest()
	if !ok {
		return nil, false
	}
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: UsageSensorId(resource.Classifier),
		},
		Value:    value,
		Decimals: 3,
	}, true
}
