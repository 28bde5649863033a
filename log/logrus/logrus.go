// Package logrus adapts a logrus entry to snapcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/snapcache"
)

var _ snapcache.Logger = Logger{}

// Logger writes through E. An "err" field is attached with WithError so
// logrus formatters render it under their error key.
type Logger struct{ E *logrus.Entry }

// New wraps l and tags every line with component=snapcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "snapcache")}
}

func (l Logger) Debug(msg string, f snapcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f snapcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f snapcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f snapcache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f snapcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	e := l.E
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		fields[k] = v
	}
	return e.WithFields(fields)
}
