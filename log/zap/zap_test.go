package zap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/gqlcache"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))

	l.Debug("cache miss", gqlcache.Fields{"operation": "Hero"})
	l.Error("cached data does not match selection", gqlcache.Fields{"operation": "Hero", "err": errors.New("corrupt")})

	if logs.Len() != 1 {
		t.Fatalf("entries=%d, want 1", logs.Len())
	}
	e := logs.All()[0]
	if e.Level != zapcore.ErrorLevel || e.Message != "cached data does not match selection" {
		t.Fatalf("level=%v msg=%q", e.Level, e.Message)
	}
	if diff := cmp.Diff(map[string]any{"operation": "Hero", "err": "corrupt"}, e.ContextMap()); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
}
