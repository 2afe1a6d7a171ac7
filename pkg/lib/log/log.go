// Package log exposes the logger used by the stager SDK.
//
// [lib.Config] takes any [Logger], when unset [Noop] is used and nothing
// is logged. Stager tags its log lines with [Kv] values such as the
// service name or the stage key, loggers that ignore them still work.
//
// A minimal adapter over the standard library logger:
//
//	type stdLogger struct{ l *stdlog.Logger }
//
//	func (s stdLogger) Infof(f string, a ...any)    { s.l.Printf("INFO "+f, a...) }
//	func (s stdLogger) Warningf(f string, a ...any) { s.l.Printf("WARN "+f, a...) }
//	func (s stdLogger) Errorf(f string, a ...any)   { s.l.Printf("ERROR "+f, a...) }
//	func (s stdLogger) Debugf(f string, a ...any)   {}
//	func (s stdLogger) WithValues(log.Kv) log.Logger { return s }
//	func (s stdLogger) WithCtxValues(context.Context) log.Logger { return s }
//	func (s stdLogger) SetValuesOnCtx(ctx context.Context, _ log.Kv) context.Context { return ctx }
package log

import "github.com/slok/stager/internal/log"

// Logger is the SDK logger.
type Logger = log.Logger

// Kv are structured key-value pairs attached to log lines.
type Kv = log.Kv

// Noop discards everything.
var Noop = log.Noop
