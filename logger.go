package snapcache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is the leveled logger snapcache writes to. Adapters for common stacks
// live in log/logrus, log/zap and log/slog. A nil Logger in Options disables
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

// keyLogger stamps every record with the storage key it was produced for.
// An explicit "key" field wins.
type keyLogger struct {
	l   Logger
	key string
}

func withKey(l Logger, key string) Logger {
	if _, nop := l.(NopLogger); nop {
		return l
	}
	return keyLogger{l: l, key: key}
}

func (k keyLogger) fields(f Fields) Fields {
	out := make(Fields, len(f)+1)
	out["key"] = k.key
	for name, v := range f {
		out[name] = v
	}
	return out
}

func (k keyLogger) Debug(msg string, f Fields) { k.l.Debug(msg, k.fields(f)) }
func (k keyLogger) Info(msg string, f Fields)  { k.l.Info(msg, k.fields(f)) }
func (k keyLogger) Warn(msg string, f Fields)  { k.l.Warn(msg, k.fields(f)) }
func (k keyLogger) Error(msg string, f Fields) { k.l.Error(msg, k.fields(f)) }
