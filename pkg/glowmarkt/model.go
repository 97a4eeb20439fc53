package glowmarkt

import "fmt"

const (
	DEFAULT_BASE_URL = "https://api.glowmarkt.com/api/v0-1"

	DEVICE_TYPE_ZIGBEE_GLOW_STICK          = "1027b6e8-9bfd-4dcb-8068-c73f6413cfaf"
	DEVICE_TYPE_ZIGBEE_GLOW_DISPLAY_SMETS2 = "b91cf82f-aafe-47f4-930a-b2ed1c7b2691"
)

type Credentials struct {
	Username      string
	Password      string
	ApplicationId string
}

type AuthResponse struct {
	Valid     *bool  `json:"valid"`
	Token     string `json:"token"`
	Exp       int64  `json:"exp,omitempty"`
	AccountId string `json:"accountId,omitempty"`
	Name      string `json:"name,omitempty"`
}

type Device struct {
	DeviceId     string `json:"deviceId"`
	DeviceTypeId string `json:"deviceTypeId"`
	// HardwareId is optional, nil when the device record does not carry one
	HardwareId  *string `json:"hardwareId,omitempty"`
	Description string  `json:"description,omitempty"`
	Active      bool    `json:"active"`
}

type Resource struct {
	ResourceId     string `json:"resourceId"`
	ResourceTypeId string `json:"resourceTypeId"`
	Name           string `json:"name"`
	Classifier     string `json:"classifier"`
	Description    string `json:"description,omitempty"`
	BaseUnit       string `json:"baseUnit"`
}

type CurrentUsage struct {
	ResourceId string `json:"resourceId"`
	Name       string `json:"name"`
	Classifier string `json:"classifier"`
	Units      string `json:"units"`
	// Data holds [unix timestamp, value] pairs
	Data [][]float64 `json:"data"`
}

// Latest returns the most recent value of the usage series.
func (u CurrentUsage) Latest() (timestamp int64, value float64, ok bool) {
	for i := len(u.Data) - 1; i >= 0; i-- {
		if len(u.Data[i]) >= 2 {
			return int64(u.Data[i][0]), u.Data[i][1], true
		}
	}
	return 0, 0, false
}

const (
	DEFAULT_MQTT_HOST = "glowmqtt.energyhive.com"
	DEFAULT_MQTT_PORT = 1883

	telemetryTopicPattern = "SMART/+/%s"
)

// TelemetryTopic is the MQTT subscription for a CAD's telemetry stream.
func TelemetryTopic(hardwareId string) string {
	return fmt.Sprintf(telemetryTopicPattern, hardwareId)
}
