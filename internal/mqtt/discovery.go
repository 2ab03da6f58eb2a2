package mqtt

import (
	"fmt"
	"strings"

	"github.com/jgulick48/powermon433-mqtt/internal/powermon"
)

func BuildDevice(model int, deviceID string) SensorDevice {
	modelName := powermon.Models[model]
	return SensorDevice{
		Name:         fmt.Sprintf("%s_%s", squash(powermon.Manufacturer), deviceID),
		Model:        modelName,
		Manufacturer: powermon.Manufacturer,
		SWVersion:    fmt.Sprintf("%s %s", powermon.ProductName, powermon.ProductVersion),
		Identifiers:  []string{fmt.Sprintf("%s_%s", squash(modelName), deviceID)},
	}
}

func BuildSensorConfig(metric powermon.Metric, deviceID string) SensorJSON {
	name := strings.ReplaceAll(metric.Name, " ", "_")
	stateTopic := StateTopic(deviceID)
	return SensorJSON{
		Name:                name,
		StateTopic:          stateTopic,
		UnitOfMeasurement:   metric.Unit,
		ValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", name),
		Device:              BuildDevice(powermon.ModelBLI28000, deviceID),
		DeviceClass:         metric.DeviceClass,
		JSONAttributesTopic: stateTopic,
		UniqueId:            fmt.Sprintf("%s_%s_%s", deviceID, name, powermon.ProductName),
	}
}

// DiscoveryTopic is where the retained config for one metric of a device is
// published. An empty prefix uses the Home Assistant default.
func DiscoveryTopic(prefix, deviceID, metricName string) string {
	if prefix == "" {
		prefix = "homeassistant"
	}
	return fmt.Sprintf("%s/sensor/%s/%s_%s/config", prefix, deviceID, deviceID, metricName)
}

func StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/sensor/%s", powermon.TopicPrefix, deviceID)
}

func squash(value string) string {
	return strings.ToLower(strings.ReplaceAll(value, " ", ""))
}
