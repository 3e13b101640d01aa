package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Leveled logger shared by the tracking service and the admin CLI.
// The package-level API (Init, Infof, Warnf, ...) wraps a single logrus
// instance so callers never import logrus directly.

type Fields = logrus.Fields

var (
	mu  sync.RWMutex
	log = newLogrus(os.Stdout)
)

func newLogrus(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	return l
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info. Set LOG_FORMAT=json for JSON output.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		log.SetLevel(logrus.FatalLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// WithFields returns an entry carrying structured fields, e.g.
// logger.WithFields(logger.Fields{"doc": id}).Info("forwarded").
func WithFields(f Fields) *logrus.Entry {
	return current().WithFields(f)
}

func Debugf(format string, v ...interface{}) { current().Debugf(format, v...) }
func Infof(format string, v ...interface{})  { current().Infof(format, v...) }
func Warnf(format string, v ...interface{})  { current().Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { current().Errorf(format, v...) }

func Fatalf(format string, v ...interface{}) {
	current().Errorf(format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) { current().Infoln(v...) }

func Debug(v string) { current().Debug(v) }
func Info(v string)  { current().Info(v) }
func Warn(v string)  { current().Warn(v) }
func Error(v string) { current().Error(v) }

// LevelString returns the current level as text.
func LevelString() string {
	switch current().GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "debug"
	case logrus.WarnLevel:
		return "warn"
	case logrus.ErrorLevel:
		return "error"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "fatal"
	}
	return "info"
}
