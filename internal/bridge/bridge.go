package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/powermon433-mqtt/internal/metrics"
	"github.com/jgulick48/powermon433-mqtt/internal/models"
	"github.com/jgulick48/powermon433-mqtt/internal/mqtt"
	"github.com/jgulick48/powermon433-mqtt/internal/powermon"
)

var (
	ErrSerialRead    = errors.New("serial read failed")
	ErrMissingSensor = errors.New("reading has no sensor id")
	ErrPublish       = errors.New("publish failed")
)

const (
	kindSerial  = "serial"
	kindParse   = "parse"
	kindPublish = "publish"
	kindOther   = "other"

	publishDiscovery = "discovery"
	publishState     = "state"
)

// State is carried from one line to the next. LastReading is only reused when
// stale readings are republished. A reading without a sensor id is published
// under LastDeviceID.
type State struct {
	LastDeviceID string
	HasDevice    bool
	LastReading  *powermon.Reading
}

type Bridge struct {
	source    powermon.Client
	publisher mqtt.Publisher
	config    models.Config
}

func New(source powermon.Client, publisher mqtt.Publisher, config models.Config) *Bridge {
	return &Bridge{
		source:    source,
		publisher: publisher,
		config:    config,
	}
}

// Run reads and publishes until ctx is cancelled. Errors are logged and never
// stop the loop.
func (b *Bridge) Run(ctx context.Context) State {
	var state State
	for ctx.Err() == nil {
		var err error
		state, err = b.Step(state)
		if err == nil || ctx.Err() != nil {
			continue
		}
		logError(err)
		if delay := b.config.Serial.ErrorDelay.Duration; delay > 0 && errors.Is(err, ErrSerialRead) {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return state
}

// Step handles a single line from the source.
func (b *Bridge) Step(state State) (State, error) {
	line, err := b.source.ReadLine()
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrSerialRead, err)
	}
	reading, err := powermon.ParseLine(line)
	if err != nil {
		if b.config.Bridge.RepublishStale && state.HasDevice && state.LastReading != nil {
			return state, errors.Join(err, b.publishReading(state.LastDeviceID, *state.LastReading))
		}
		return state, err
	}
	readingsTotal.WithLabelValues().Inc()

	deviceID, ok := reading.SensorID()
	if !ok {
		err = fmt.Errorf("%w: %s", ErrMissingSensor, strings.TrimSpace(line))
		if !b.config.Bridge.DropUnidentified && state.HasDevice {
			state.LastReading = &reading
			return state, errors.Join(err, b.publishReading(state.LastDeviceID, reading))
		}
		return state, err
	}
	state = State{
		LastDeviceID: deviceID,
		HasDevice:    true,
		LastReading:  &reading,
	}
	recordValues(deviceID, reading.Values())

	var errs []error
	for _, metric := range powermon.Metrics {
		topic := mqtt.DiscoveryTopic(b.config.MQTT.DiscoveryPrefix, deviceID, metric.Name)
		if err := b.publish(topic, true, mqtt.BuildSensorConfig(metric, deviceID), publishDiscovery); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.publishReading(deviceID, reading); err != nil {
		errs = append(errs, err)
	}
	return state, errors.Join(errs...)
}

func (b *Bridge) publishReading(deviceID string, reading powermon.Reading) error {
	return b.publish(mqtt.StateTopic(deviceID), false, reading, publishState)
}

func (b *Bridge) publish(topic string, retained bool, payload interface{}, publishType string) error {
	if err := b.publisher.Publish(topic, retained, payload); err != nil {
		return fmt.Errorf("%w to %s: %v", ErrPublish, topic, err)
	}
	publishesTotal.WithLabelValues(publishType).Inc()
	log.Debug().Str("topic", topic).Bool("retained", retained).Msg("data published")
	return nil
}

func recordValues(deviceID string, values powermon.Values) {
	tags := []string{metrics.FormatTag("sensor", deviceID)}
	record := func(gauge *prometheus.GaugeVec, name string, value null.Float) {
		if !value.Valid {
			return
		}
		gauge.WithLabelValues(deviceID).Set(value.Float64)
		metrics.SendGaugeMetric(name, tags, value.Float64)
	}
	record(printDelta, "print_delta_ms", values.PrintDeltaMs)
	record(totalEnergy, "total_energy_wh", values.TotalEnergyWh)
	record(power, "power_watts", values.PowerW)
	record(temperature, "temperature_celsius", values.TempC)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrSerialRead):
		return kindSerial
	case errors.Is(err, powermon.ErrMalformedLine), errors.Is(err, ErrMissingSensor):
		return kindParse
	case errors.Is(err, ErrPublish):
		return kindPublish
	default:
		return kindOther
	}
}

func logError(err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			logError(e)
		}
		return
	}
	kind := errorKind(err)
	errorsTotal.WithLabelValues(kind).Inc()
	switch kind {
	case kindSerial:
		log.Error().Err(err).Str("kind", kind).Msg("Error reading from serial port")
	case kindParse:
		log.Warn().Err(err).Str("kind", kind).Msg("Discarding line from receiver")
	case kindPublish:
		log.Error().Err(err).Str("kind", kind).Msg("Error publishing to broker")
	default:
		log.Error().Err(err).Str("kind", kind).Msg("Unexpected error")
	}
}
