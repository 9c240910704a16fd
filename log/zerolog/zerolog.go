// Package zerolog adapts a zerolog.Logger to flashguard.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/flashguard"
)

type Logger struct{ L zerolog.Logger }

var _ flashguard.Logger = Logger{}

func (z Logger) Debug(msg string, f flashguard.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f flashguard.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f flashguard.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f flashguard.Fields) { emit(z.L.Error(), msg, f) }

// emit is a no-op for disabled levels: zerolog hands back a nil event.
func emit(e *zerolog.Event, msg string, f flashguard.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
