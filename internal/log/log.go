package log

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zap logger with context-aware hooks.
type Logger struct {
	zap *zap.Logger

	mu    sync.RWMutex
	hooks []Hook
}

// New creates a Logger from the given config.
func New(cfg Config) *Logger {
	cfg = cfg.withDefaults()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer

	switch cfg.Output {
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	case "file":
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	default:
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)

	logger := &Logger{
		zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Named(cfg.Name),
	}
	logger.AddHook(HookFunc(traceFields))

	return logger
}

// AddHook registers a hook that contributes fields from the context to every entry.
func (l *Logger) AddHook(hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hooks = append(l.hooks, hook)
}

// AsSlog returns an slog.Logger backed by the same zap core.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(&slogHandler{core: l.zap.Core()})
}

// DebugEnabled reports whether debug-level logging is enabled.
func (l *Logger) DebugEnabled() bool {
	return l.zap.Core().Enabled(zapcore.DebugLevel)
}

func (l *Logger) applyHooks(ctx context.Context, msg string, fields []Field) []Field {
	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()

	for _, hook := range hooks {
		fields = append(fields, hook.Apply(ctx, msg)...)
	}

	return fields
}

// Debug logs a message at debug level with hook-derived context fields.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.zap.Debug(msg, l.applyHooks(ctx, msg, fields)...)
}

// Info logs a message at info level with hook-derived context fields.
func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.zap.Info(msg, l.applyHooks(ctx, msg, fields)...)
}

// Warn logs a message at warn level with hook-derived context fields.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.zap.Warn(msg, l.applyHooks(ctx, msg, fields)...)
}

// Error logs a message at error level with hook-derived context fields.
func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.zap.Error(msg, l.applyHooks(ctx, msg, fields)...)
}

//nolint:gochecknoglobals // Package-level default logger.
var (
	globalMu     sync.RWMutex
	globalLogger = New(Config{})
)

// SetGlobalConfig replaces the global logger with one built from cfg.
func SetGlobalConfig(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	globalLogger = New(cfg)
}

// GetGlobalLogger returns the global logger.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

// Debug logs at debug level via the global logger.
func Debug(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Debug(ctx, msg, fields...)
}

// Info logs at info level via the global logger.
func Info(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Info(ctx, msg, fields...)
}

// Warn logs at warn level via the global logger.
func Warn(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Warn(ctx, msg, fields...)
}

// Error logs at error level via the global logger.
func Error(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Error(ctx, msg, fields...)
}

// DebugEnabled reports whether the global logger has debug enabled.
func DebugEnabled() bool {
	return GetGlobalLogger().DebugEnabled()
}
