package gqlcache

// Fields carries structured context for one log line.
type Fields map[string]any

// Logger is the leveled logging surface the store writes to. Adapters for
// slog, zap and logrus live under log/. A nil Logger in Options disables
// logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// With returns a Logger adding base to every entry. Per-call fields win on
// conflict.
func With(l Logger, base Fields) Logger {
	if len(base) == 0 {
		return l
	}
	if _, nop := l.(NopLogger); nop {
		return l
	}
	return withLogger{l: l, base: base}
}

type withLogger struct {
	l    Logger
	base Fields
}

func (w withLogger) merge(f Fields) Fields {
	out := make(Fields, len(w.base)+len(f))
	for k, v := range w.base {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (w withLogger) Debug(msg string, f Fields) { w.l.Debug(msg, w.merge(f)) }
func (w withLogger) Info(msg string, f Fields)  { w.l.Info(msg, w.merge(f)) }
func (w withLogger) Warn(msg string, f Fields)  { w.l.Warn(msg, w.merge(f)) }
func (w withLogger) Error(msg string, f Fields) { w.l.Error(msg, w.merge(f)) }
