// Package logger provides logging functionality for the application.
package logger

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module provides the logger module and its dependencies.
var Module = fx.Module("logger",
	fx.Provide(New),
)

// New builds a logger from the given debug flag and level string, matching
// the development/production split the rest of the ambient stack expects.
func New(debug bool, level string) (Interface, error) {
	if debug {
		return NewDevelopmentLogger(level)
	}
	return NewProductionLogger(level)
}

// NewDevelopmentLogger initializes a logger for development with colored
// console output plus an app.log file.
func NewDevelopmentLogger(logLevelStr string) (Interface, error) {
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return nil, err
	}

	devEncoderConfig := zap.NewDevelopmentEncoderConfig()
	devEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	fileWriter, _, err := zap.Open("app.log")
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := zapcore.NewMultiWriteSyncer(
		zapcore.AddSync(os.Stdout),
		zapcore.AddSync(fileWriter),
	)

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(devEncoderConfig),
		multiWriter,
		logLevel,
	)

	zapLogger := zap.New(consoleCore, zap.AddCaller(), zap.Development())
	zapLogger.Info("development logger initialized")

	return &ZapLogger{Logger: zapLogger}, nil
}

// NewProductionLogger initializes a JSON-encoded logger for production.
func NewProductionLogger(logLevelStr string) (Interface, error) {
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return nil, err
	}

	fileWriter, _, err := zap.Open("app.log")
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := zapcore.NewMultiWriteSyncer(
		zapcore.AddSync(os.Stdout),
		zapcore.AddSync(fileWriter),
	)

	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		multiWriter,
		logLevel,
	)

	zapLogger := zap.New(consoleCore)
	zapLogger.Info("production logger initialized")

	return &ZapLogger{Logger: zapLogger}, nil
}

// parseLogLevel converts a string log level to a zapcore.Level.
func parseLogLevel(logLevelStr string) (zapcore.Level, error) {
	if logLevelStr == "" {
		return zapcore.InfoLevel, nil
	}

	switch logLevelStr {
	case levelDebug:
		return zapcore.DebugLevel, nil
	case levelInfo:
		return zapcore.InfoLevel, nil
	case levelWarn:
		return zapcore.WarnLevel, nil
	case levelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.DebugLevel, errors.New("unknown log level")
	}
}
