package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/flashguard"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), "worker")

	l.Debug("d", nil)
	l.Info("i", flashguard.Fields{"order_id": int64(7)})
	l.Warn("w", nil)
	l.Error("e", flashguard.Fields{"err": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if entries[0].LoggerName != "worker" {
		t.Fatalf("logger name = %q", entries[0].LoggerName)
	}
	if got := entries[1].ContextMap()["order_id"]; got != int64(7) {
		t.Fatalf("order_id = %v", got)
	}
	if got := entries[3].ContextMap()["err"]; got != "boom" {
		t.Fatalf("err field = %v", got)
	}
	if entries[3].Level != zapcore.ErrorLevel {
		t.Fatalf("level = %v", entries[3].Level)
	}
}
