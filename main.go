package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/panicwrap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jgulick48/powermon433-mqtt/internal/bridge"
	"github.com/jgulick48/powermon433-mqtt/internal/logging"
	"github.com/jgulick48/powermon433-mqtt/internal/metrics"
	"github.com/jgulick48/powermon433-mqtt/internal/models"
	"github.com/jgulick48/powermon433-mqtt/internal/mqtt"
	"github.com/jgulick48/powermon433-mqtt/internal/powermon"
)

type flags struct {
	configFile       string
	device           string
	baud             int
	host             string
	port             int
	logLevel         string
	republishStale   bool
	dropUnidentified bool
}

func main() {
	exitStatus, err := panicwrap.BasicWrap(panicHandler)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to start panic handler: %s\n", err)
		os.Exit(1)
	}
	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}
	cmd, _ := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func panicHandler(output string) {
	log.Error().Str("panic", output).Msg("powermon433-mqtt crashed")
	os.Exit(1)
}

func newRootCommand() (*cobra.Command, *flags) {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "powermon433-mqtt",
		Short:         "Publish Powermon433 serial readings to MQTT with Home Assistant discovery",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), config)
		},
	}
	cmd.Flags().StringVarP(&f.configFile, "config", "c", models.DefaultConfigFile, "path to the JSON config file")
	cmd.Flags().StringVar(&f.device, "device", "", "serial device of the receiver")
	cmd.Flags().IntVar(&f.baud, "baud", 0, "serial baud rate")
	cmd.Flags().StringVar(&f.host, "host", "", "MQTT broker host")
	cmd.Flags().IntVar(&f.port, "port", 0, "MQTT broker port")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&f.republishStale, "republish-stale", false, "republish the last good reading when a line cannot be parsed")
	cmd.Flags().BoolVar(&f.dropUnidentified, "drop-unidentified", false, "discard readings without a sensor id instead of publishing them under the last one")
	return cmd, f
}

func loadConfig(cmd *cobra.Command, f flags) (models.Config, error) {
	config, err := models.LoadConfig(f.configFile)
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		return config, err
	}
	if f.device != "" {
		config.Serial.Device = f.device
	}
	if f.baud > 0 {
		config.Serial.Baud = f.baud
	}
	if f.host != "" {
		config.MQTT.Host = f.host
	}
	if f.port > 0 {
		config.MQTT.Port = f.port
	}
	if f.logLevel != "" {
		config.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("republish-stale") {
		config.Bridge.RepublishStale = f.republishStale
	}
	if cmd.Flags().Changed("drop-unidentified") {
		config.Bridge.DropUnidentified = f.dropUnidentified
	}
	if err := logging.Init(config.LogLevel, config.Debug); err != nil {
		return config, err
	}
	if missing {
		log.Warn().Str("file", f.configFile).Msg("No config file found, using defaults")
	}
	return config, nil
}

func run(ctx context.Context, config models.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metrics.Configure(config.StatsServer); err != nil {
		log.Error().Err(err).Str("statsServer", config.StatsServer).Msg("Error creating stats client")
	}
	defer metrics.Close()
	if config.PrometheusAddress != "" {
		if err := bridge.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("address", config.PrometheusAddress).Msg("Serving metrics")
			if err := http.ListenAndServe(config.PrometheusAddress, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	source, err := powermon.NewClient(config.Serial)
	if err != nil {
		log.Error().Err(err).Str("device", config.Serial.Device).Msg("Unable to open serial port")
		return err
	}
	mqttClient := mqtt.NewClient(config.MQTT)
	if err := mqttClient.Connect(); err != nil {
		log.Error().Err(err).Msg("Unable to connect to broker")
		source.Close()
		return err
	}
	defer mqttClient.Close()

	go func() {
		<-ctx.Done()
		// ReadLine notices within one poll interval
		source.Close()
	}()
	log.Info().
		Str("device", config.Serial.Device).
		Int("baud", config.Serial.Baud).
		Bool("republishStale", config.Bridge.RepublishStale).
		Msg("Bridge started")
	bridge.New(source, mqttClient, config).Run(ctx)
	log.Info().Msg("Bridge stopped")
	return nil
}
