// Package logger is the process-wide structured logger. It wraps zap and keeps
// two call shapes: plain messages (Info/Warn/Error) and JSON audit events
// (InfoJ/WarnJ/ErrorJ) carrying an event name plus a field map.
package logger

import (
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cur   atomic.Pointer[zap.Logger]
)

func init() {
	cur.Store(newProduction())
	if lv := os.Getenv("PINGBURST_LOG_LEVEL"); lv != "" {
		_ = SetLevel(lv)
	}
}

func newProduction() *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// SetLevel changes the minimum level of the default logger ("debug", "info", ...).
func SetLevel(lv string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(lv)))); err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Replace swaps the underlying zap logger and returns a func restoring the
// previous one. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	prev := cur.Swap(l)
	return func() { cur.Store(prev) }
}

// L exposes the current zap logger for callers needing typed fields.
func L() *zap.Logger { return cur.Load() }

// Sync flushes buffered entries.
func Sync() { _ = cur.Load().Sync() }

func Debug(msg string) { cur.Load().Debug(msg) }
func Info(msg string)  { cur.Load().Info(msg) }
func Warn(msg string)  { cur.Load().Warn(msg) }
func Error(msg string) { cur.Load().Error(msg) }

// InfoJ logs an audit event with its fields sorted by key.
func InfoJ(event string, kv map[string]any) { cur.Load().Info(event, fields(kv)...) }

// WarnJ is InfoJ at warn level.
func WarnJ(event string, kv map[string]any) { cur.Load().Warn(event, fields(kv)...) }

// ErrorJ is InfoJ at error level.
func ErrorJ(event string, kv map[string]any) { cur.Load().Error(event, fields(kv)...) }

// DebugJ is InfoJ at debug level.
func DebugJ(event string, kv map[string]any) { cur.Load().Debug(event, fields(kv)...) }

func fields(kv map[string]any) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := kv[k].(type) {
		case error:
			out = append(out, zap.String(k, v.Error()))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
