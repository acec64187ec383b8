// Package logger provides the structured logger the cmd/ledger driver logs
// through: the same Level/Config/Debug-Info-Warn-Error-Fatal surface the
// teacher's hand-rolled logger exposed, now backed by zap's SugaredLogger
// rather than hand-formatted strings.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors zapcore.Level's ordering so callers don't need to import
// zap directly.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config configures a Logger. UseJSON selects zap's JSON encoder over its
// console encoder; LogFile, if set, additionally writes to that path.
type Config struct {
	Level   Level
	Prefix  string
	UseJSON bool
	LogFile string
}

// DefaultConfig returns a console-encoded, INFO-level configuration.
func DefaultConfig() *Config {
	return &Config{Level: INFO, Prefix: "utxoledger", UseJSON: false}
}

// Logger wraps a zap.SugaredLogger with the field set every component
// call-site here expects: Debug/Info/Warn/Error/Fatal with printf-style
// formatting, and WithFields for contextual loggers.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger from config, writing to stdout and, if configured,
// to LogFile as well.
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if config.UseJSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), config.Level.zapLevel())
	base := zap.New(core)
	if config.Prefix != "" {
		base = base.Named(config.Prefix)
	}
	return &Logger{sugar: base.Sugar()}, nil
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *Logger) Fatal(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// WithFields returns a derived Logger carrying the given key/value pairs
// on every subsequent entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{sugar: l.sugar.With(args...)}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
