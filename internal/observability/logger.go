package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func InitLogger(app string, level zerolog.Level) zerolog.Logger {
	return initLogger(os.Stdout, app, level)
}

func initLogger(out io.Writer, app string, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a flag value to a level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
