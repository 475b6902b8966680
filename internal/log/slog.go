package log

import (
	"context"
	"log/slog"

	"go.uber.org/zap/zapcore"
)

// slogHandler adapts a zapcore.Core to the slog.Handler interface so that
// libraries speaking slog share the same sink and encoder.
type slogHandler struct {
	core  zapcore.Core
	attrs []slog.Attr
	group string
}

func slogLevelToZap(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.Enabled(slogLevelToZap(level))
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	entry := zapcore.Entry{
		Level:   slogLevelToZap(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}

	checked := h.core.Check(entry, nil)
	if checked == nil {
		return nil
	}

	fields := make([]zapcore.Field, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields = append(fields, h.attrToField(attr))
	}

	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, h.attrToField(attr))
		return true
	})

	checked.Write(fields...)

	return nil
}

func (h *slogHandler) attrToField(attr slog.Attr) zapcore.Field {
	key := attr.Key
	if h.group != "" {
		key = h.group + "." + key
	}

	return Any(key, attr.Value.Resolve().Any())
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &slogHandler{core: h.core, attrs: merged, group: h.group}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &slogHandler{core: h.core, attrs: h.attrs, group: group}
}
