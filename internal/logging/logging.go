// Package logging builds the process logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a configured zerolog logger.
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
}
