// Package logging builds the process-wide zap logger and carries
// correlation IDs through contexts so every component logs the same
// structured schema.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Providers select the output encoding.
const (
	ProviderStdout = "stdout"
	ProviderGoogle = "google"
)

// Config controls logger construction.
type Config struct {
	Provider string `mapstructure:"provider"`
	Level    string `mapstructure:"level"`
	// NamePrefix becomes the logger name on every event, which log
	// sinks use to route this process's entries.
	NamePrefix string `mapstructure:"name_prefix"`
}

// New builds a JSON logger for the configured provider. Both providers
// emit timestamp, severity, and message keys; the google provider
// uppercases level names and uses RFC3339Nano timestamps so Cloud
// Logging ingests severity natively.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		MessageKey:     "message",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderStdout, "":
	case ProviderGoogle:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	default:
		return nil, fmt.Errorf("unknown log provider %q", cfg.Provider)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		level,
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if cfg.NamePrefix != "" {
		logger = logger.Named(cfg.NamePrefix)
	}
	return logger, nil
}

// Module returns a child logger tagged with the component name that
// appears as the "module" field on every event.
func Module(logger *zap.Logger, name string) *zap.Logger {
	return logger.With(zap.String("module", name))
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
