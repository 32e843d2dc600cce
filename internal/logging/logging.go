// Package logging builds the zap loggers of the binaries.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development logger with human readable timestamps if debug is set,
// otherwise a production logger with unix timestamps in milliseconds.
func New(debug bool) (*zap.Logger, error) {
	var config zap.Config
	var encoderConfig zapcore.EncoderConfig

	if debug {
		config = zap.NewDevelopmentConfig()
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewProductionConfig()
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.EpochMillisTimeEncoder
	}
	config.EncoderConfig = encoderConfig

	return config.Build()
}

// Session returns a logger that tags every entry with the given session id.
func Session(logger *zap.Logger, id string, instance int) *zap.Logger {
	return logger.With(zap.String("session", id), zap.Int("instance", instance))
}
