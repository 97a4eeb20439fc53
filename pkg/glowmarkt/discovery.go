package glowmarkt

import "fmt"

var cadDeviceTypes = []string{
	DEVICE_TYPE_ZIGBEE_GLOW_STICK,
	DEVICE_TYPE_ZIGBEE_GLOW_DISPLAY_SMETS2,
}

func IsCadDeviceType(deviceTypeId string) bool {
	for _, t := range cadDeviceTypes {
		if t == deviceTypeId {
			return true
		}
	}
	return false
}

// DiscoverHardwareId locates the Consumer Access Device hardware id. Only the
// first CAD in the list is considered, a CAD without hardware id is an error.
func DiscoverHardwareId(devices []Device) (string, error) {
	for _, dev := range devices {
		if !IsCadDeviceType(dev.DeviceTypeId) {
			continue
		}
		if dev.HardwareId == nil || *dev.HardwareId == "" {
			return "", fmt.Errorf("%w: device %s has no hardware id", ErrNoCadAvailable, dev.DeviceId)
		}
		return *dev.HardwareId, nil
	}
	return "", fmt.Errorf("%w: %d devices, none is a CAD", ErrNoCadAvailable, len(devices))
}
