// Package logger builds structured loggers for each service. Unlike the
// package-level global the DFS monolith used, every caller constructs its
// own *Logger and threads it through service constructors explicitly.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a configured *logrus.Logger with contextual helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a structured logger for a named service. JSON formatting is
// used unless isDevelopment is true.
func New(service, level string, isDevelopment bool) *Logger {
	log := logrus.New()

	if level == "" {
		if isDevelopment {
			level = "debug"
		} else {
			level = "info"
		}
	}

	if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		log.SetLevel(parsed)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", level).Warn("invalid log level, defaulting to info")
	}

	if !isDevelopment {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}
	log.SetOutput(os.Stdout)

	return &Logger{Logger: log, service: service}
}

// With returns a logrus.Entry carrying this service's name plus any extra
// fields.
func (l *Logger) With(fields logrus.Fields) *logrus.Entry {
	merged := logrus.Fields{"service": l.service}
	for k, v := range fields {
		merged[k] = v
	}
	return l.WithFields(merged)
}

// Base returns the bare service-tagged entry, the common case.
func (l *Logger) Base() *logrus.Entry {
	return l.WithField("service", l.service)
}
