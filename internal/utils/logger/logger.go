package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	global *zap.SugaredLogger
)

// Logger returns the process wide sugared logger, creating a console logger
// at info level on first use.
func Logger() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), level)).Sugar()
	}
	return global
}

// Init rebuilds the global logger. An empty filePath logs to stderr only.
func Init(levelName string, filePath string) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), level),
	}

	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", filePath, err)
		}
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(f), level))
	}

	mu.Lock()
	global = zap.New(zapcore.NewTee(cores...)).Sugar()
	mu.Unlock()
	return nil
}

// Level returns the active level name.
func Level() string {
	return level.Level().String()
}

// ParseLevel accepts debug, info, warn, error. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", name)
	}
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeCaller = nil
	return zapcore.NewConsoleEncoder(cfg)
}
