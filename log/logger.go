// Package log writes JSON log lines tagged with the image handler they
// belong to.
//
// Entries carry the handler name and, when known, its channel. Per-call
// fields are flattened into the entry in key order.
package log

import (
	"io"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnv selects the minimum level (debug, info, warn, error).
const LevelEnv = "IMAGESTREAM_LOG_LEVEL"

// Identity names the image handler a log line belongs to.
type Identity struct {
	Handler string
	// Channel is the publish channel, if known.
	Channel string
}

// Logger is a structured logger. A nil *Logger discards everything.
type Logger struct {
	zap    *zap.Logger
	level  zapcore.Level
	fields []zap.Field
}

// NewLogger returns a logger writing to stderr at the level named by
// LevelEnv, or debug when unset or invalid.
func NewLogger(id Identity) *Logger {
	level := zapcore.DebugLevel
	if v := os.Getenv(LevelEnv); v != "" {
		if l, err := zapcore.ParseLevel(v); err == nil {
			level = l
		}
	}
	return newLogger(id, os.Stderr, level)
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func newLogger(id Identity, w io.Writer, level zapcore.Level) *Logger {
	fields := []zap.Field{zap.String("handler", id.Handler)}
	if id.Channel != "" {
		fields = append(fields, zap.String("channel", id.Channel))
	}
	return build(w, level, fields)
}

func build(w io.Writer, level zapcore.Level, fields []zap.Field) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return &Logger{zap: zap.New(core).With(fields...), level: level, fields: fields}
}

func (l *Logger) base() *zap.Logger {
	if l == nil || l.zap == nil {
		return zap.NewNop()
	}
	return l.zap
}

// WithOutput returns a copy of l writing to w. Identity and With fields
// are kept.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l == nil {
		return build(w, zapcore.DebugLevel, nil)
	}
	return build(w, l.level, l.fields)
}

// With returns a logger that adds key to every entry.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	f := zap.Any(key, value)
	return &Logger{zap: l.base().With(f), level: l.level, fields: append(slices.Clip(l.fields), f)}
}

func flatten(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.base().Debug(message, flatten(fields)...)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base().Info(message, flatten(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.base().Warn(message, flatten(fields)...)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base().Error(message, flatten(fields)...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.base().Sync()
}
