package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	printDelta = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powermonPrintDeltaMilliseconds",
			Help: "Time between the two most recent transmissions from the power monitor.",
		},
		[]string{
			"sensor",
		},
	)
	totalEnergy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powermonTotalEnergyWattHours",
			Help: "Cumulative energy reported by the power monitor.",
		},
		[]string{
			"sensor",
		},
	)
	power = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powermonPowerWatts",
			Help: "Instantaneous power reported by the power monitor.",
		},
		[]string{
			"sensor",
		},
	)
	temperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powermonTemperatureCelsius",
			Help: "Outdoor transmitter temperature reported by the power monitor.",
		},
		[]string{
			"sensor",
		},
	)
	readingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powermonReadingsTotal",
			Help: "Lines successfully parsed from the serial port.",
		},
		[]string{},
	)
	publishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powermonPublishesTotal",
			Help: "Messages published to the broker.",
		},
		[]string{
			"type",
		},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powermonErrorsTotal",
			Help: "Errors seen by the bridge loop.",
		},
		[]string{
			"kind",
		},
	)
)

// RegisterMetrics adds the bridge collectors to the given registerer.
func RegisterMetrics(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		printDelta,
		totalEnergy,
		power,
		temperature,
		readingsTotal,
		publishesTotal,
		errorsTotal,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
