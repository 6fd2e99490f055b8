// Package logging provides structured logging for CoEdit.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. Later calls are no-ops.
func Init(out io.Writer, level string) {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(out)
		l.SetFormatter(&logrus.JSONFormatter{})
		if parsed, err := logrus.ParseLevel(level); err == nil {
			l.SetLevel(parsed)
		} else {
			l.SetLevel(logrus.InfoLevel)
		}
		global = l
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// mergeContext flattens the optional context maps into logrus fields.
func mergeContext(context ...map[string]interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for _, c := range context {
		for k, v := range c {
			fields[k] = v
		}
	}
	return fields
}

// Debug logs a debug message.
func Debug(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeContext(context...)).Debug(message)
}

// Info logs an info message.
func Info(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeContext(context...)).Info(message)
}

// Warn logs a warning message.
func Warn(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeContext(context...)).Warn(message)
}

// Error logs an error message with its cause.
func Error(message string, err error, context ...map[string]interface{}) {
	entry := Get().WithFields(mergeContext(context...))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
