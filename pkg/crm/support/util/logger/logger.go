// Package logger provides the leveled logging API used across the import engine.
// It wraps a zap SugaredLogger and filters messages based on a global log level.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the logger settings.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR, FATAL (case-insensitive).
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "console"
	sugar  = newSugar(format)
)

func newSugar(format string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Configure applies level and output format. An empty format keeps the current one.
func Configure(cfg Config) {
	SetLogLevel(cfg.Level)

	f := strings.ToLower(cfg.Format)
	if f == "" {
		return
	}
	if f != "json" && f != "console" {
		Warnf("Unknown log format '%s' specified. Keeping '%s'.", cfg.Format, format)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	if f != format {
		_ = sugar.Sync()
		format = f
		sugar = newSugar(f)
	}
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// An invalid value falls back to INFO with a warning.
func SetLogLevel(l string) {
	switch strings.ToUpper(l) {
	case "DEBUG", "TRACE":
		level.SetLevel(zapcore.DebugLevel)
	case "INFO", "":
		level.SetLevel(zapcore.InfoLevel)
	case "WARN":
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		level.SetLevel(zapcore.ErrorLevel)
	case "FATAL", "SILENT":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
		Warnf("Unknown log level '%s' specified. Defaulting to INFO level.", l)
	}
}

// GetLogLevel returns the current level name in upper case.
func GetLogLevel() string {
	return strings.ToUpper(level.Level().String())
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Fatalf formats and outputs a FATAL level log message,
// then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	current().Fatalf(format, v...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

// GormWriter adapts the package logger to gorm's logger.Writer interface.
type GormWriter struct{}

// Printf implements gorm's logger.Writer. gorm already filters by its own level.
func (GormWriter) Printf(format string, v ...interface{}) {
	Debugf("%s", strings.TrimSpace(fmt.Sprintf(format, v...)))
}
