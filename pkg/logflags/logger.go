package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal logging surface the CLI and decoding core's Logf
// hooks actually use: one leveled, formatted line at a time. Trimmed from
// logrus.FieldLogger's full method set down to what this module calls.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// LoggerFactory is used to create new Logger instances.
// SetLoggerFactory can be used to configure it.
//
// The given parameters fields and out can be both be nil.
type LoggerFactory func(flag bool, fields Fields, out io.Writer) Logger

var loggerFactory LoggerFactory

// SetLoggerFactory will ensure that every Logger created by this package, will be now created
// by the given LoggerFactory. Default behavior will be a logrus based Logger instance.
func SetLoggerFactory(lf LoggerFactory) {
	loggerFactory = lf
}

// Fields type wraps many fields for Logger
type Fields map[string]interface{}

// logrusLogger wraps a *logrus.Entry; Debugf is satisfied by the embedded
// Entry's own method, since its signature already matches Logger.
type logrusLogger struct {
	*logrus.Entry
}
