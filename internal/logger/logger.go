package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. Output is mirrored into the in-memory
// ring so the /logs endpoint can serve recent entries without log files.
func Setup(level, format string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	var base io.Writer = os.Stdout
	if strings.ToLower(format) == "console" {
		base = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(newCaptureWriter(base)).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns a child logger tagged with the component name.
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
