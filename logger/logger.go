// Package logger builds the zap loggers that the rest of the module
// uses.
//
// Logs go to stderr.  Stdout belongs to script output and to the
// stdio coupling.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level.
type LogLevel string

// LogFormat represents the logging format.
type LogFormat string

const (
	DebugLevel LogLevel = "DEBUG"
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"

	// ProductionLevel is an alias for InfoLevel.
	ProductionLevel LogLevel = "PRODUCTION"

	// FormatConsole is human-readable.
	FormatConsole LogFormat = "CONSOLE"
	// FormatJSON is one JSON object per entry.
	FormatJSON LogFormat = "JSON"
)

const (
	// EnvLevel overrides the level given to Initialize.
	EnvLevel = "LOGGING_LEVEL"
	// EnvFormat overrides the format given to Initialize.
	EnvFormat = "LOGGING_FORMAT"
)

var (
	once        sync.Once
	initialized bool
)

// ParseLevel converts a level name to a zapcore.Level.  Unknown
// names give InfoLevel.
func ParseLevel(level string) zapcore.Level {
	switch LogLevel(strings.ToUpper(level)) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseFormat converts a format name to a LogFormat.  Unknown names
// give def.
func ParseFormat(format string, def LogFormat) LogFormat {
	switch f := LogFormat(strings.ToUpper(format)); f {
	case FormatConsole, FormatJSON:
		return f
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000 MST"))
}

// New makes a logger that writes to stderr.
func New(level string, format LogFormat) *zap.Logger {
	return NewTo(os.Stderr, level, format)
}

// NewTo makes a logger that writes to w.
func NewTo(w io.Writer, level string, format LogFormat) *zap.Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	if format == FormatConsole {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = timeEncoder
		cfg.ConsoleSeparator = " | "
		enc = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core, zap.AddCaller())
}

// Initialize sets up the global logger.  LOGGING_LEVEL and
// LOGGING_FORMAT, when set, override the arguments.  Calls after the
// first do nothing.
func Initialize(level string, format LogFormat) {
	once.Do(func() {
		level = getEnv(EnvLevel, level)
		format = ParseFormat(getEnv(EnvFormat, string(format)), format)
		l := New(level, format)
		zap.ReplaceGlobals(l)
		initialized = true
		l.Debug("logger initialized",
			zap.String("level", level),
			zap.String("format", string(format)))
	})
}

// GetLogger returns the global logger, initializing it if needed.
func GetLogger() *zap.Logger {
	if !initialized {
		Initialize(string(ProductionLevel), FormatConsole)
	}
	return zap.L()
}

// For returns a named logger for a component.
func For(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return zap.L().Sync()
}
