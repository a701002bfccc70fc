// Package logger provides logging functionality for the application.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	levelDebug = "debug"
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"
	levelFatal = "fatal"
)

// Params holds the parameters for creating a logger.
type Params struct {
	Debug  bool
	Level  string
	AppEnv string
}

// ZapLogger implements Interface using zap.Logger.
type ZapLogger struct {
	*zap.Logger
}

func (l *ZapLogger) Debug(msg string, fields ...any) {
	l.Logger.Debug(msg, ConvertToZapFields(fields)...)
}

func (l *ZapLogger) Error(msg string, fields ...any) {
	l.Logger.Error(msg, ConvertToZapFields(fields)...)
}

func (l *ZapLogger) Info(msg string, fields ...any) {
	l.Logger.Info(msg, ConvertToZapFields(fields)...)
}

func (l *ZapLogger) Warn(msg string, fields ...any) {
	l.Logger.Warn(msg, ConvertToZapFields(fields)...)
}

func (l *ZapLogger) Fatal(msg string, fields ...any) {
	l.Logger.Fatal(msg, ConvertToZapFields(fields)...)
}

func (l *ZapLogger) Sync() error {
	return l.Logger.Sync()
}

// NewTestLogger creates a new logger for testing.
func NewTestLogger() Interface {
	devLogger, _ := zap.NewDevelopment()
	return &ZapLogger{Logger: devLogger}
}

// maskSensitiveData masks sensitive information in the given value.
func maskSensitiveData(value any) any {
	switch v := value.(type) {
	case map[string]any:
		masked := make(map[string]any)
		for key, val := range v {
			if isSensitiveField(key) {
				masked[key] = "[REDACTED]"
			} else {
				masked[key] = maskSensitiveData(val)
			}
		}
		return masked
	case []any:
		masked := make([]any, len(v))
		for i, val := range v {
			masked[i] = maskSensitiveData(val)
		}
		return masked
	default:
		return value
	}
}

// isSensitiveField checks if a field name indicates sensitive data.
func isSensitiveField(field string) bool {
	sensitiveFields := []string{
		"password",
		"apiKey",
		"apikey",
		"token",
		"secret",
		"key",
		"credentials",
	}
	lower := strings.ToLower(field)
	for _, s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ConvertToZapFields converts variadic key-value pairs to zap.Fields.
func ConvertToZapFields(fields []any) []zap.Field {
	var zapFields []zap.Field

	if len(fields) == 0 {
		return zapFields
	}

	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			zapFields = append(zapFields, zap.Any(fmt.Sprintf("value%d", i), maskSensitiveData(fields[i])))
			i--
			continue
		}
		zapFields = append(zapFields, zap.Any(key, maskSensitiveData(fields[i+1])))
	}

	if len(fields)%2 != 0 {
		last := fields[len(fields)-1]
		if str, ok := last.(string); ok {
			zapFields = append(zapFields, zap.String("context", str))
		} else {
			zapFields = append(zapFields, zap.Any("context", maskSensitiveData(last)))
		}
	}

	return zapFields
}

// NewCustomLogger creates a new logger with the given parameters.
// If a logger is provided, it is used as-is; otherwise a new one is built
// from params.
func NewCustomLogger(zapLogger *zap.Logger, params Params) (Interface, error) {
	if zapLogger != nil {
		return &ZapLogger{Logger: zapLogger}, nil
	}

	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	config.EncoderConfig.ConsoleSeparator = " | "

	config.DisableCaller = true
	config.DisableStacktrace = true

	var level zapcore.Level
	switch params.Level {
	case levelDebug:
		level = zapcore.DebugLevel
	case levelInfo:
		level = zapcore.InfoLevel
	case levelWarn:
		level = zapcore.WarnLevel
	case levelError:
		level = zapcore.ErrorLevel
		config.DisableCaller = false
		config.DisableStacktrace = false
	case levelFatal:
		level = zapcore.FatalLevel
		config.DisableCaller = false
		config.DisableStacktrace = false
	default:
		if params.Debug {
			level = zapcore.DebugLevel
		} else {
			level = zapcore.InfoLevel
		}
	}

	config.Level = zap.NewAtomicLevelAt(level)

	built, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{Logger: built}, nil
}
