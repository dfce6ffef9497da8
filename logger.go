package dynamolock

import "github.com/go-logr/logr"

// lockLogger holds the package-wide logger.
type lockLogger struct {
	logger logr.Logger
}

var globalLogger *lockLogger

// InitializeLogger sets up the package logger with a user-defined logger.
// Engines log through GetLogger with structured key/value pairs.
func InitializeLogger(l logr.Logger) {
	globalLogger = &lockLogger{logger: l}
}

// GetLogger returns the global Logger instance, defaulting to a discard
// logger if InitializeLogger was never called.
func GetLogger() logr.Logger {
	if globalLogger == nil {
		return logr.Discard()
	}
	return globalLogger.logger
}

func init() {
	InitializeLogger(logr.Discard())
}
