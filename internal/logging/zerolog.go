package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init replaces the global logger. Debug output is written for a terminal.
func Init(logLevel string, debug bool) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("logging: failed to parse log level of %s: %w", logLevel, err)
	}
	var out io.Writer = os.Stdout
	if debug {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		if level > zerolog.DebugLevel {
			level = zerolog.DebugLevel
		}
	}
	log.Logger = zerolog.New(out).
		With().
		Timestamp().
		Logger()
	zerolog.SetGlobalLevel(level)
	return nil
}
