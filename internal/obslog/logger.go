// Package obslog provides the JSON-per-line structured logger shared by
// every component: mandatory ts/level/event/ctx fields, size-bounded
// rotation, and secret redaction applied to ctx values before they ever
// reach zap's field encoder.
package obslog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

// Init builds the package-level logger. path is the rotating sink's file;
// an empty path writes entries nowhere: they are discarded (used by tests
// and CLI helpers that never need a durable log).
func Init(path string, maxBytes int64, backups int) error {
	var writer zapcore.WriteSyncer
	if path == "" {
		writer = zapcore.Lock(zapcore.AddSync(zapcore.NewMultiWriteSyncer()))
	} else {
		rw, err := NewRotatingWriter(path, maxBytes, backups)
		if err != nil {
			return err
		}
		writer = rw
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "event",
		NameKey:        "logger",
		CallerKey:      "",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, zapcore.InfoLevel)

	mu.Lock()
	log = zap.New(core)
	mu.Unlock()
	return nil
}

// L returns the package-level logger, falling back to a no-op logger if
// Init was never called (keeps tests that don't care about logging safe).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return nil
	}
	return log.Sync()
}

// Event starts a structured log entry for the given event name. Every
// component calls this instead of zap's Info/Warn/Error directly, so the
// ctx map always passes through redaction uniformly.
func Event(name string) *Builder {
	return &Builder{name: name, ctx: map[string]any{}}
}

// Builder accumulates ctx fields for a single log entry before it is
// emitted at a chosen level.
type Builder struct {
	name string
	ctx  map[string]any
}

// With attaches a ctx field. Values matching a redacted key name are
// masked when the entry is emitted, never before — callers may still
// inspect their own local variable.
func (b *Builder) With(key string, value any) *Builder {
	b.ctx[key] = value
	return b
}

func (b *Builder) emit(level zapcore.Level) {
	redacted := redactCtx(b.ctx)
	logger := L()
	field := zap.Any("ctx", redacted)
	switch level {
	case zapcore.WarnLevel:
		logger.Warn(b.name, field)
	case zapcore.ErrorLevel:
		logger.Error(b.name, field)
	default:
		logger.Info(b.name, field)
	}
}

// Info emits this entry at info level.
func (b *Builder) Info() { b.emit(zapcore.InfoLevel) }

// Warn emits this entry at warn level.
func (b *Builder) Warn() { b.emit(zapcore.WarnLevel) }

// Error emits this entry at error level.
func (b *Builder) Error() { b.emit(zapcore.ErrorLevel) }
