// Package zap adapts a *zap.Logger to flashguard.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/flashguard"
)

type Logger struct{ L *zap.Logger }

var _ flashguard.Logger = Logger{}

// New names the logger after the component, e.g. "cache" or "worker".
func New(l *zap.Logger, component string) Logger {
	if component != "" {
		l = l.Named(component)
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f flashguard.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f flashguard.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f flashguard.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f flashguard.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f flashguard.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
