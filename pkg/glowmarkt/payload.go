package glowmarkt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ZigBee Smart Energy metering cluster (0x0702) attribute sets and attributes
// as found in the Glow telemetry document.
const (
	CLUSTER_METERING = "0702"

	SET_READING_INFORMATION                = "00"
	SET_FORMATTING                         = "03"
	SET_HISTORICAL_CONSUMPTION             = "04"
	SET_ALTERNATIVE_HISTORICAL_CONSUMPTION = "0C"

	ATTR_CURRENT_SUMMATION_DELIVERED = "00"
	ATTR_CURRENT_SUMMATION_RECEIVED  = "01"

	ATTR_UNIT_OF_MEASURE = "00"
	ATTR_MULTIPLIER      = "01"
	ATTR_DIVISOR         = "02"

	ATTR_INSTANTANEOUS_DEMAND               = "00"
	ATTR_CURRENT_DAY_CONSUMPTION_DELIVERED  = "01"
	ATTR_PREVIOUS_DAY_CONSUMPTION_DELIVERED = "03"

	ATTR_ALT_CURRENT_DAY_CONSUMPTION_DELIVERED  = "01"
	ATTR_ALT_PREVIOUS_DAY_CONSUMPTION_DELIVERED = "03"
)

type TelemetryPayload struct {
	Electricity *MeterPayload
	Gas         *MeterPayload
}

type MeterPayload struct {
	ReadingInformationSet            ReadingInformationSet
	Formatting                       Formatting
	HistoricalConsumption            HistoricalConsumption
	AlternativeHistoricalConsumption AlternativeHistoricalConsumption
}

type ReadingInformationSet struct {
	CurrentSummationDelivered *uint64
	CurrentSummationReceived  *uint64
}

type Formatting struct {
	UnitOfMeasure *uint64
	Multiplier    *uint64
	Divisor       *uint64
}

type HistoricalConsumption struct {
	InstantaneousDemand             *int64
	CurrentDayConsumptionDelivered  *uint64
	PreviousDayConsumptionDelivered *uint64
}

type AlternativeHistoricalConsumption struct {
	CurrentDayConsumptionDelivered  *uint64
	PreviousDayConsumptionDelivered *uint64
}

type wirePayload struct {
	Electricity *wireMeter `json:"elecMtr"`
	Gas         *wireMeter `json:"gasMtr"`
}

type wireMeter struct {
	Metering map[string]map[string]json.RawMessage `json:"0702"`
}

// Decode parses a raw Glow telemetry message. Unknown keys are ignored, every
// attribute that is read must be a hex encoded string.
func Decode(raw []byte) (*TelemetryPayload, error) {
	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	payload := &TelemetryPayload{}
	if wire.Electricity != nil {
		meter, err := decodeMeter(wire.Electricity)
		if err != nil {
			return nil, fmt.Errorf("%w: elecMtr: %w", ErrMalformedPayload, err)
		}
		payload.Electricity = meter
	}
	if wire.Gas != nil {
		meter, err := decodeMeter(wire.Gas)
		if err != nil {
			return nil, fmt.Errorf("%w: gasMtr: %w", ErrMalformedPayload, err)
		}
		payload.Gas = meter
	}
	return payload, nil
}

func decodeMeter(wm *wireMeter) (*MeterPayload, error) {
	sets := attributeSets(wm.Metering)
	meter := &MeterPayload{}
	var err error

	ris := sets[SET_READING_INFORMATION]
	if meter.ReadingInformationSet.CurrentSummationDelivered, err = hexUint(ris, ATTR_CURRENT_SUMMATION_DELIVERED); err != nil {
		return nil, err
	}
	if meter.ReadingInformationSet.CurrentSummationReceived, err = hexUint(ris, ATTR_CURRENT_SUMMATION_RECEIVED); err != nil {
		return nil, err
	}

	fmtSet := sets[SET_FORMATTING]
	if meter.Formatting.UnitOfMeasure, err = hexUint(fmtSet, ATTR_UNIT_OF_MEASURE); err != nil {
		return nil, err
	}
	if meter.Formatting.Multiplier, err = hexUint(fmtSet, ATTR_MULTIPLIER); err != nil {
		return nil, err
	}
	if meter.Formatting.Divisor, err = hexUint(fmtSet, ATTR_DIVISOR); err != nil {
		return nil, err
	}

	hc := sets[SET_HISTORICAL_CONSUMPTION]
	if meter.HistoricalConsumption.InstantaneousDemand, err = hexInt(hc, ATTR_INSTANTANEOUS_DEMAND); err != nil {
		return nil, err
	}
	if meter.HistoricalConsumption.CurrentDayConsumptionDelivered, err = hexUint(hc, ATTR_CURRENT_DAY_CONSUMPTION_DELIVERED); err != nil {
		return nil, err
	}
	if meter.HistoricalConsumption.PreviousDayConsumptionDelivered, err = hexUint(hc, ATTR_PREVIOUS_DAY_CONSUMPTION_DELIVERED); err != nil {
		return nil, err
	}

	ahc := sets[SET_ALTERNATIVE_HISTORICAL_CONSUMPTION]
	if meter.AlternativeHistoricalConsumption.CurrentDayConsumptionDelivered, err = hexUint(ahc, ATTR_ALT_CURRENT_DAY_CONSUMPTION_DELIVERED); err != nil {
		return nil, err
	}
	if meter.AlternativeHistoricalConsumption.PreviousDayConsumptionDelivered, err = hexUint(ahc, ATTR_ALT_PREVIOUS_DAY_CONSUMPTION_DELIVERED); err != nil {
		return nil, err
	}

	return meter, nil
}

// attributeSets normalizes set and attribute ids to upper case hex
func attributeSets(in map[string]map[string]json.RawMessage) map[string]map[string]json.RawMessage {
	out := make(map[string]map[string]json.RawMessage, len(in))
	for setId, attrs := range in {
		norm := make(map[string]json.RawMessage, len(attrs))
		for attrId, value := range attrs {
			norm[strings.ToUpper(attrId)] = value
		}
		out[strings.ToUpper(setId)] = norm
	}
	return out
}

func hexString(set map[string]json.RawMessage, attr string) (string, bool, error) {
	raw, ok := set[attr]
	if !ok || raw == nil || string(raw) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("attribute %s: %w", attr, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}

func hexUint(set map[string]json.RawMessage, attr string) (*uint64, error) {
	s, ok, err := hexString(set, attr)
	if err != nil || !ok {
		return nil, err
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attr, err)
	}
	return &v, nil
}

// hexInt decodes a two's complement value whose width is given by the number
// of hex digits, e.g. "FFFFFF" is -1 for an int24 attribute.
func hexInt(set map[string]json.RawMessage, attr string) (*int64, error) {
	s, ok, err := hexString(set, attr)
	if err != nil || !ok {
		return nil, err
	}
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attr, err)
	}
	bits := uint(len(s) * 4)
	v := int64(u)
	if bits < 64 && u&(1<<(bits-1)) != 0 {
		v = int64(u) - int64(1)<<bits
	}
	return &v, nil
}
