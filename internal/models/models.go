package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	DefaultConfigFile      = "./config.json"
	DefaultDevice          = "/dev/ttyACM0"
	DefaultBaud            = 38400
	DefaultHost            = "localhost"
	DefaultPort            = 1883
	DefaultClientID        = "powermon433"
	DefaultDiscoveryPrefix = "homeassistant"
)

type Config struct {
	Serial            SerialConfiguration `json:"serial"`
	MQTT              MQTTConfiguration   `json:"mqtt"`
	Bridge            BridgeConfiguration `json:"bridge"`
	StatsServer       string              `json:"statsServer"`
	PrometheusAddress string              `json:"prometheusAddress"`
	LogLevel          string              `json:"logLevel"`
	Debug             bool                `json:"debug"`
}

type SerialConfiguration struct {
	Device      string   `json:"device"`
	Baud        int      `json:"baud"`
	ReadTimeout Duration `json:"readTimeout"`
	ErrorDelay  Duration `json:"errorDelay"`
}

type MQTTConfiguration struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ClientID        string   `json:"clientId"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	QoS             byte     `json:"qos"`
	PublishTimeout  Duration `json:"publishTimeout"`
	DiscoveryPrefix string   `json:"discoveryPrefix"`
}

// BrokerURL is the paho broker address for the configured host and port.
func (c MQTTConfiguration) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

type BridgeConfiguration struct {
	// RepublishStale resends the last good reading when the current line
	// cannot be parsed.
	RepublishStale bool `json:"republishStale"`
	// DropUnidentified discards readings without a sensor id instead of
	// publishing them under the last known one.
	DropUnidentified bool `json:"dropUnidentified"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		// bare numbers are seconds
		d.Duration = time.Duration(value * float64(time.Second))
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Serial: SerialConfiguration{
			Device:     DefaultDevice,
			Baud:       DefaultBaud,
			ErrorDelay: Duration{time.Second},
		},
		MQTT: MQTTConfiguration{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ClientID:        DefaultClientID,
			PublishTimeout:  Duration{5 * time.Second},
			DiscoveryPrefix: DefaultDiscoveryPrefix,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads filename over the defaults. A missing file is reported
// with os.ErrNotExist and the defaults are still returned.
func LoadConfig(filename string) (Config, error) {
	if filename == "" {
		filename = DefaultConfigFile
	}
	config := DefaultConfig()
	configFile, err := os.ReadFile(filename)
	if err != nil {
		return config.normalize(), err
	}
	if err = json.Unmarshal(configFile, &config); err != nil {
		return config, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	config = config.normalize()
	if err = config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return config, nil
}

// Validate reports settings the bridge cannot run with.
func (c Config) Validate() error {
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	durations := map[string]Duration{
		"serial.readTimeout":  c.Serial.ReadTimeout,
		"serial.errorDelay":   c.Serial.ErrorDelay,
		"mqtt.publishTimeout": c.MQTT.PublishTimeout,
	}
	for name, d := range durations {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

func (c Config) normalize() Config {
	if c.Serial.Device == "" {
		c.Serial.Device = DefaultDevice
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.MQTT.Host == "" {
		c.MQTT.Host = DefaultHost
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = DefaultPort
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
