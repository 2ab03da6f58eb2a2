package powermon

const (
	ProductName    = "powermon433_mqtt"
	ProductVersion = "0.0.1"
	Manufacturer   = "Blue Line Innovations"
	TopicPrefix    = "powermon433"
	SensorField    = "sensor"
)

// Models is indexed by the model number passed to discovery.
var Models = []string{"BLI-28000"}

const ModelBLI28000 = 0

type Metric struct {
	Name        string
	Unit        string
	DeviceClass string
}

// Metrics is the fixed set of fields the receiver sketch prints, in the
// order their discovery payloads are published.
var Metrics = []Metric{
	{
		Name: "PrintDelta_ms",
		Unit: "ms",
	},
	{
		Name: "Total_Energy_Wh",
		Unit: "Wh",
	},
	{
		Name:        "Power_W",
		Unit:        "W",
		DeviceClass: "power",
	},
	{
		Name:        "Temp_C",
		Unit:        "degC",
		DeviceClass: "temperature",
	},
}
