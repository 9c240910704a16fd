// Package logrus adapts a *logrus.Entry to flashguard.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/flashguard"
)

type Logger struct{ E *logrus.Entry }

var _ flashguard.Logger = Logger{}

func New(l *logrus.Logger, component string) Logger {
	return Logger{E: l.WithField("component", component)}
}

func (l Logger) Debug(msg string, f flashguard.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f flashguard.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f flashguard.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f flashguard.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus' error key.
func (l Logger) with(f flashguard.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
