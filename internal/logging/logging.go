// Package logging provides structured logging for HerdWatch-Go built on log/slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"gopkg.in/natefinch/lumberjack.v2"
)

var structuredLogger *slog.Logger
var humanReadableLogger *slog.Logger

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Custom level names for trace and fatal levels.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// replaceLevelNames customizes level labels in log output.
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

func newHandlers(structuredOutput, humanReadableOutput io.Writer, structuredLevel, humanLevel slog.Level) (*slog.Logger, *slog.Logger) {
	structured := slog.New(slog.NewJSONHandler(structuredOutput, &slog.HandlerOptions{
		Level:       structuredLevel,
		ReplaceAttr: replaceLevelNames,
	}))
	human := slog.New(slog.NewTextHandler(humanReadableOutput, &slog.HandlerOptions{
		Level:       humanLevel,
		ReplaceAttr: replaceLevelNames,
	}))
	return structured, human
}

// Init initializes the logging system with a structured JSON logger on stdout
// and a human-readable text logger on stderr. The structured logger becomes
// the process default.
func Init() {
	structuredLogger, humanReadableLogger = newHandlers(os.Stdout, os.Stderr, slog.LevelDebug, slog.LevelInfo)
	slog.SetDefault(structuredLogger)
}

// SetLevel sets the minimum logging level for both loggers.
func SetLevel(level slog.Level) {
	structuredLogger, humanReadableLogger = newHandlers(os.Stdout, os.Stderr, level, level)
	slog.SetDefault(structuredLogger)
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable (text) logger.
// Returns nil if Init() has not been called.
func HumanReadable() *slog.Logger {
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// It uses the global structured logger as the base.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	if structuredLogger == nil {
		return nil
	}
	return structuredLogger.With("service", serviceName)
}

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// NewFileLogger creates a slog.Logger writing JSON logs to the given file,
// rotated by lumberjack according to the main log settings. It returns the
// logger, a close function for the underlying writer, and an error.
func NewFileLogger(filePath, serviceName string, level slog.Level) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename: filePath,
	}

	maxSizeMB := 100
	maxBackups := 3
	maxAge := 28 // days

	if settings := conf.Setting(); settings != nil {
		logConf := settings.Main.Log
		if configMaxSizeMB := int(logConf.MaxSize / (1024 * 1024)); configMaxSizeMB > 0 {
			maxSizeMB = configMaxSizeMB
		}
		switch logConf.Rotation {
		case conf.RotationDaily:
			maxAge = 1
			maxBackups = 30
		case conf.RotationWeekly:
			maxAge = 7
			maxBackups = 4
		case conf.RotationSize:
			// size limit derived above
		default:
			slog.Warn("Unknown log rotation type in config, using size-based defaults", "configuredType", logConf.Rotation)
		}
	}

	logWriter.MaxSize = maxSizeMB
	logWriter.MaxBackups = maxBackups
	logWriter.MaxAge = maxAge

	fileHandler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})

	logger := slog.New(fileHandler).With("service", serviceName)
	return logger, logWriter.Close, nil
}
