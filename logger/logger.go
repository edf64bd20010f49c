package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"meshmon/config"
)

var (
	mu   sync.RWMutex
	root *zap.SugaredLogger = zap.NewNop().Sugar()
)

// Init builds the global logger from the configured preset. Calling Init
// again replaces the previous logger.
func Init(cfg config.LoggingConfig) error {
	level, encoder, err := preset(cfg.Preset)
	if err != nil {
		return err
	}

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
	if cfg.FilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	core := zapcore.NewCore(encoder, sink, level)
	l := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	root = l.Sugar()
	mu.Unlock()
	return nil
}

func preset(name string) (zapcore.Level, zapcore.Encoder, error) {
	devEnc := zap.NewDevelopmentEncoderConfig()
	prodEnc := zap.NewProductionEncoderConfig()
	switch name {
	case "development", "":
		return zapcore.DebugLevel, zapcore.NewConsoleEncoder(devEnc), nil
	case "production":
		return zapcore.InfoLevel, zapcore.NewJSONEncoder(prodEnc), nil
	case "testing":
		return zapcore.WarnLevel, zapcore.NewConsoleEncoder(devEnc), nil
	case "debug":
		return zapcore.DebugLevel, zapcore.NewJSONEncoder(prodEnc), nil
	default:
		return zapcore.InfoLevel, nil, fmt.Errorf("unknown logging preset: %s", name)
	}
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func Debugf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	root.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	root.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	root.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	root.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	root.Fatalf(format, args...)
}
