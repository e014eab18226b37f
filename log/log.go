package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

// Logger is a global interface for nnpipe loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})
}

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("NNPIPE_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetDebug overrides the level of loggers created after the call.
func SetDebug(v bool) {
	debug = v
}

// Adapt returns logrus field logger for any Logger. Loggers created by
// logrus are returned as is, others lose structured fields.
func Adapt(l Logger) logrus.FieldLogger {
	if fl, ok := l.(logrus.FieldLogger); ok {
		return fl
	}
	base := logrus.New()
	base.SetLevel(logrus.DebugLevel)
	base.SetOutput(discard{})
	base.AddHook(forward{l})
	return base
}

type discard struct{}

func (discard) Write(p []byte) (int, error) {
	return len(p), nil
}

// forward sends logrus entries to a plain logger.
type forward struct {
	l Logger
}

func (forward) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (f forward) Fire(e *logrus.Entry) error {
	msg := e.Message
	if len(e.Data) > 0 {
		if s, err := e.String(); err == nil {
			msg = s
		}
	}
	switch e.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		f.l.Debug(msg)
	case logrus.InfoLevel:
		f.l.Info(msg)
	case logrus.WarnLevel:
		f.l.Warn(msg)
	default:
		f.l.Error(msg)
	}
	return nil
}
