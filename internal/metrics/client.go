package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

var Metrics *statsd.Client
var StatsEnabled bool

// Configure points the package at a statsd server. An empty address leaves
// stats disabled.
func Configure(address string) error {
	if address == "" {
		StatsEnabled = false
		return nil
	}
	client, err := statsd.New(address, statsd.WithNamespace("powermon433."))
	if err != nil {
		return err
	}
	Metrics = client
	StatsEnabled = true
	return nil
}

func Close() {
	if Metrics != nil {
		Metrics.Close()
	}
	StatsEnabled = false
}

func FormatTag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

func SendGaugeMetric(name string, tags []string, value float64) {
	if StatsEnabled {
		err := Metrics.Gauge(name, value, tags, 1)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Got error trying to send metric")
		}
	}
}
