// Package logrus adapts github.com/sirupsen/logrus to gqlcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/gqlcache"
)

var _ gqlcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every entry with component=gqlcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "gqlcache")}
}

func (l LogrusLogger) Debug(msg string, f gqlcache.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f gqlcache.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f gqlcache.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f gqlcache.Fields) { l.entry(f).Error(msg) }

func (l LogrusLogger) entry(f gqlcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	fs := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			continue
		}
		fs[k] = v
	}
	return e.WithFields(fs)
}
