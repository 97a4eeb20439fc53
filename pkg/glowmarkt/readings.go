package glowmarkt

import "fmt"

// Readings is the flat view of a telemetry message. A nil field is absent,
// which is distinct from a zero reading.
type Readings struct {
	GasConsumption    *float64 `json:"gas_consumption"`
	PowerConsumption  *int64   `json:"power_consumption"`
	EnergyConsumption *float64 `json:"energy_consumption"`
}

func ToReadings(payload *TelemetryPayload) (Readings, error) {
	var readings Readings
	if payload == nil {
		return readings, nil
	}

	if payload.Gas != nil {
		if v := payload.Gas.AlternativeHistoricalConsumption.CurrentDayConsumptionDelivered; v != nil {
			gas := float64(*v)
			readings.GasConsumption = &gas
		}
	}

	if elec := payload.Electricity; elec != nil {
		if v := elec.HistoricalConsumption.InstantaneousDemand; v != nil {
			power := *v
			readings.PowerConsumption = &power
		}

		// a zero summation is absent
		summation := elec.ReadingInformationSet.CurrentSummationDelivered
		if summation != nil && *summation != 0 {
			multiplier, divisor := elec.Formatting.Multiplier, elec.Formatting.Divisor
			if multiplier != nil && divisor != nil {
				if *divisor == 0 {
					return Readings{}, fmt.Errorf("%w: formatting divisor is zero", ErrMalformedPayload)
				}
				energy := float64(*summation) * float64(*multiplier) / float64(*divisor)
				readings.EnergyConsumption = &energy
			}
		}
	}

	return readings, nil
}

func (r Readings) HasAny() bool {
	return r.GasConsumption != nil || r.PowerConsumption != nil || r.EnergyConsumption != nil
}
