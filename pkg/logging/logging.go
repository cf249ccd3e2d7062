package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/libertai/ltai-points/pkg/utils"
)

// New builds the process logger. Level and encoding come from the
// environment (LOG_LEVEL, LOG_ENCODING); a repeated -v flag on the CLI
// overrides the level upwards via NewWithVerbosity.
func New() (*zap.Logger, error) {
	return NewWithVerbosity(-1)
}

// NewWithVerbosity builds a logger where verbosity counts (0, 1, 2+) map to
// warn, info and debug. A negative verbosity defers to LOG_LEVEL.
func NewWithVerbosity(verbosity int) (*zap.Logger, error) {
	level := utils.Env("LOG_LEVEL", "info")
	switch {
	case verbosity == 0:
		level = "warn"
	case verbosity == 1:
		level = "info"
	case verbosity >= 2:
		level = "debug"
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = utils.Env("LOG_ENCODING", "json")
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
