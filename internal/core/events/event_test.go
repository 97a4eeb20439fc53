package events

import (
	"testing"

	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingsToUpdateEvents(t *testing.T) {

	gas := 1.5
	power := int64(-120)
	events := ReadingsToUpdateEvents(glowmarkt.Readings{
		GasConsumption:   &gas,
		PowerConsumption: &power,
	})
	require.Len(t, events, 2)

	gasEvent, ok := events[0].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_GAS_CONSUMPTION, gasEvent.SensorId())
	assert.Equal(t, 1.5, gasEvent.Value)

	powerEvent, ok := events[1].(domain.IntSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_POWER_CONSUMPTION, powerEvent.SensorId())
	assert.Equal(t, int64(-120), powerEvent.Value)
}

func TestReadingsToUpdateEventsAbsent(t *testing.T) {
	assert.Empty(t, ReadingsToUpdateEvents(glowmarkt.Readings{}))
}

func TestCurrentUsageUpdateEvent(t *testing.T) {

	resource := glowmarkt.Resource{ResourceId: "r1", Classifier: "electricity.consumption"}

	event, ok := CurrentUsageUpdateEvent(resource, &glowmarkt.CurrentUsage{Data: [][]float64{{1, 10}, {2, 20}}})
	require.True(t, ok)
	usage := event.(domain.FloatSensorUpdateEvent)
	assert.Equal(t, "usage_electricity_consumption", usage.SensorId())
	assert.Equal(t, 20.0, usage.Value)

	_, ok = CurrentUsageUpdateEvent(resource, &glowmarkt.CurrentUsage{})
	assert.False(t, ok)
}
