package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It discards everything until Init runs.
var Logger = zerolog.Nop()

// Level is a zerolog level name: debug, info, warn or error
type Level string

// Config selects the level and encoding of the process logger
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init replaces Logger. Unknown levels fall back to info. Output defaults to
// stderr so a template written to stdout stays machine readable.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent tags entries with the composer or subsystem emitting them
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithStack tags entries with the stack they concern
func WithStack(stackName string) zerolog.Logger {
	return Logger.With().Str("stack", stackName).Logger()
}

// WithDeployment tags entries with a stack and one of its deployment records
func WithDeployment(stackName, deploymentID string) zerolog.Logger {
	return Logger.With().Str("stack", stackName).Str("deployment", deploymentID).Logger()
}
