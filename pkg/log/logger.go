// Package log is the structured logger used across ledgergate.
//
// Loggers are passed explicitly or carried in a context.Context; there is no
// package-level logger. A request handler typically does
//
//	ctx = log.SetContextLogger(ctx, logger.WithKV("method", method))
//	...
//	log.FromContext(ctx).Info("command authorized", "sender", sender)
//
// When the context carries a valid OpenTelemetry span, records are mirrored
// onto the span as events.
package log

// Logger is the logging interface consumed by every package in the module.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and terminates the process for zap-backed loggers.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a logger that attaches key/value to every record.
	WithKV(key string, value any) Logger
	// GetAllKV returns the key/value pairs attached with WithKV.
	GetAllKV() []any
	// WithName returns a child logger, names are joined with dots.
	WithName(name string) Logger
	Name() string
	// AddCallerSkip is used by wrappers so the reported caller stays correct.
	AddCallerSkip(skip int) Logger
}

// Level is the severity of a record.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config selects the encoder, minimum level and destination of a ZapLogger.
type Config struct {
	Format string `env:"LEDGERGATE_LOG_FORMAT" env-default:"console"` // console, logfmt or json
	Level  Level  `env:"LEDGERGATE_LOG_LEVEL" env-default:"info"`
	Output string `env:"LEDGERGATE_LOG_OUTPUT" env-default:"stderr"` // stderr, stdout or a file path
}

// SpanEventRecorder receives log records that should be attached to a trace span.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string
	RecordEvent(name string, keysAndValues ...any)
	RecordError(name string, keysAndValues ...any)
}
