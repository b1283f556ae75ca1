package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger("info")

// Logger returns the process wide logger.
func Logger() *logrus.Logger {
	return logger
}

// Setup replaces the process wide logger with one at the given level.
func Setup(level string) *logrus.Logger {
	logger = newLogger(level)
	return logger
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// LogError writes err with the module/function/context fields used across the desk.
func LogError(l *logrus.Logger, moduleName, funcName, context string, data any, err error) {
	if l == nil || err == nil {
		return
	}
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	l.WithFields(fields).Error(err.Error())
}
