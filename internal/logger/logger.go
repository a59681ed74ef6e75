package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Output goes to stderr so it never mixes
// with the error log file or a stdout response stream.
func New(level, format string) zerolog.Logger {
	return newWithWriter(os.Stderr, level, format)
}

func newWithWriter(w io.Writer, level, format string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(logLevel).With().Timestamp().Logger()
}
