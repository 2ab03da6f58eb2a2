package mqtt

// SensorJSON is a Home Assistant MQTT discovery payload for a sensor entity.
// Field order is the order Home Assistant documents the keys in.
type SensorJSON struct {
	Name                string       `json:"name"`
	StateTopic          string       `json:"state_topic"`
	UnitOfMeasurement   string       `json:"unit_of_measurement"`
	ValueTemplate       string       `json:"value_template"`
	Device              SensorDevice `json:"device"`
	DeviceClass         string       `json:"device_class,omitempty"`
	JSONAttributesTopic string       `json:"json_attributes_topic"`
	UniqueId            string       `json:"unique_id"`
}

type SensorDevice struct {
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version"`
	Identifiers  []string `json:"identifiers"`
}
