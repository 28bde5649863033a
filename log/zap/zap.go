// Package zap adapts a zap logger to snapcache.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/snapcache"
)

var _ snapcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l under the "snapcache" name.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("snapcache")} }

func (z Logger) Debug(msg string, f snapcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f snapcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f snapcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f snapcache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f snapcache.Fields) []zap.Field {
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
