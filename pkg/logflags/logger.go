package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is what every wincore layer logs through.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Error(args ...interface{})
}

// Fields are attached to every line logged by a layer.
type Fields map[string]interface{}

// Backend builds the Logger for a layer. Enabled reports whether the layer
// was selected with --log-output, out is the --log-dest writer and may be
// nil.
type Backend func(enabled bool, fields Fields, out io.Writer) Logger

var backend Backend

// UseBackend routes every Logger created afterwards through b. Passing nil
// restores the logrus backend.
func UseBackend(b Backend) {
	backend = b
}

var textFormatter = &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}

func newLogger(enabled bool, fields Fields) Logger {
	if backend != nil {
		return backend(enabled, fields, logOut)
	}
	l := logrus.New()
	l.Formatter = textFormatter
	if logOut != nil {
		l.Out = logOut
	}
	if enabled {
		l.Level = logrus.DebugLevel
	} else {
		l.Level = logrus.ErrorLevel
	}
	return entry{l.WithFields(logrus.Fields(fields))}
}

// entry adapts a logrus entry to Logger.
type entry struct {
	e *logrus.Entry
}

func (l entry) WithField(key string, value interface{}) Logger {
	return entry{l.e.WithField(key, value)}
}

func (l entry) WithError(err error) Logger { return entry{l.e.WithError(err)} }

func (l entry) Debugf(format string, args ...interface{}) { l.e.Debugf(format, args...) }
func (l entry) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l entry) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }
func (l entry) Debug(args ...interface{})                 { l.e.Debug(args...) }
func (l entry) Error(args ...interface{})                 { l.e.Error(args...) }
