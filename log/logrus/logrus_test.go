package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/gqlcache"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)
	l := New(base)

	l.Debug("cache miss", nil)
	boom := errors.New("boom")
	l.Warn("record store write failed", gqlcache.Fields{"err": boom, "records": 3})

	if n := len(hook.AllEntries()); n != 1 {
		t.Fatalf("entries=%d, want 1", n)
	}
	e := hook.LastEntry()
	if e.Level != logrus.WarnLevel || e.Message != "record store write failed" {
		t.Fatalf("level=%v msg=%q", e.Level, e.Message)
	}
	if e.Data["component"] != "gqlcache" || e.Data["records"] != 3 {
		t.Fatalf("data=%v", e.Data)
	}
	if err, _ := e.Data[logrus.ErrorKey].(error); err != boom {
		t.Fatalf("err field=%v", e.Data[logrus.ErrorKey])
	}
}
