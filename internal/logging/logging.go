// Package logging builds the process logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLogLevel overrides the level unless --verbose is given.
const EnvLogLevel = "PLAYBOOKCTL_LOG_LEVEL"

// Formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	// Format is FormatJSON (production encoder) or FormatConsole
	// (development encoder). Empty picks console when stderr is a terminal
	// and JSON otherwise.
	Format string

	// Verbose forces debug level.
	Verbose bool

	// OutputPaths defaults to stderr so stdout stays free for command output.
	OutputPaths []string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatJSON
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = FormatConsole
		}
	}

	var cfg zap.Config
	switch format {
	case FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", opts.Format, FormatJSON, FormatConsole)
	}

	level := zapcore.InfoLevel
	if lvl, enabled, ok := ParseLevel(getenv(EnvLogLevel)); ok {
		if !enabled && !opts.Verbose {
			return zap.NewNop(), nil
		}
		level = lvl
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// ParseLevel maps a level name to a zap level. enabled is false for the
// "off" family; ok is false for empty or unknown input.
func ParseLevel(raw string) (level zapcore.Level, enabled, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zapcore.InfoLevel, true, false
	case "trace", "debug":
		return zapcore.DebugLevel, true, true
	case "info":
		return zapcore.InfoLevel, true, true
	case "warn", "warning":
		return zapcore.WarnLevel, true, true
	case "error":
		return zapcore.ErrorLevel, true, true
	case "off", "disabled", "none":
		return zapcore.InfoLevel, false, true
	default:
		return zapcore.InfoLevel, true, false
	}
}
