package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// loggerWithSkip is implemented by loggers that accept an explicit caller skip.
type loggerWithSkip interface {
	logfWithSkip(skip int, level Level, format string, args ...any)
}

// ContextLogger decorates a Logger with the trace id of the span active in ctx, so query logs can
// be matched with the zdb.Query span that produced them.
type ContextLogger struct {
	base    Logger
	traceID string
}

// NewContextLogger wraps base with the trace id found in ctx. Without a valid span the wrapper
// behaves exactly like base.
func NewContextLogger(ctx context.Context, base Logger) *ContextLogger {
	var traceID string

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	return &ContextLogger{base: base, traceID: traceID}
}

// TraceID returns the trace id carried by the logger, empty when there is none.
func (l *ContextLogger) TraceID() string {
	return l.traceID
}

func (l *ContextLogger) withTraceInfo(args []any) []any {
	if l.traceID == "" {
		return args
	}

	return append(args, map[string]any{traceIDKey: l.traceID})
}

func (l *ContextLogger) emit(level Level, format string, args ...any) {
	args = l.withTraceInfo(args)

	// skip=3: logfWithSkip <- emit <- Debug/Info/... <- caller
	if ls, ok := l.base.(loggerWithSkip); ok && level != FATAL {
		ls.logfWithSkip(3, level, format, args...)

		return
	}

	plain, formatted := l.methods(level)
	if format == "" {
		plain(args...)

		return
	}

	formatted(format, args...)
}

func (l *ContextLogger) methods(level Level) (plain func(...any), formatted func(string, ...any)) {
	switch level {
	case DEBUG:
		return l.base.Debug, l.base.Debugf
	case NOTICE:
		return l.base.Notice, l.base.Noticef
	case WARN:
		return l.base.Warn, l.base.Warnf
	case ERROR:
		return l.base.Error, l.base.Errorf
	case FATAL:
		return l.base.Fatal, l.base.Fatalf
	default:
		return l.base.Info, l.base.Infof
	}
}

func (l *ContextLogger) Debug(args ...any)             { l.emit(DEBUG, "", args...) }
func (l *ContextLogger) Debugf(f string, args ...any)  { l.emit(DEBUG, f, args...) }
func (l *ContextLogger) Log(args ...any)               { l.emit(INFO, "", args...) }
func (l *ContextLogger) Logf(f string, args ...any)    { l.emit(INFO, f, args...) }
func (l *ContextLogger) Info(args ...any)              { l.emit(INFO, "", args...) }
func (l *ContextLogger) Infof(f string, args ...any)   { l.emit(INFO, f, args...) }
func (l *ContextLogger) Notice(args ...any)            { l.emit(NOTICE, "", args...) }
func (l *ContextLogger) Noticef(f string, args ...any) { l.emit(NOTICE, f, args...) }
func (l *ContextLogger) Warn(args ...any)              { l.emit(WARN, "", args...) }
func (l *ContextLogger) Warnf(f string, args ...any)   { l.emit(WARN, f, args...) }
func (l *ContextLogger) Error(args ...any)             { l.emit(ERROR, "", args...) }
func (l *ContextLogger) Errorf(f string, args ...any)  { l.emit(ERROR, f, args...) }
func (l *ContextLogger) Fatal(args ...any)             { l.emit(FATAL, "", args...) }
func (l *ContextLogger) Fatalf(f string, args ...any)  { l.emit(FATAL, f, args...) }
func (l *ContextLogger) ChangeLevel(level Level)       { l.base.ChangeLevel(level) }
