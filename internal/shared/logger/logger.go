package logger

import (
	"log"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

var (
	once  sync.Once
	level zap.AtomicLevel
)

func init() {
	once.Do(func() {
		level = zap.NewAtomicLevelAt(getZapLogLevel())
		if err := Configure(getOutputPaths()...); err != nil {
			log.Panic("failed to build logger", err)
		}
	})
}

// Configure rebuilds the global logger so that it writes to the given
// output paths. Every record is also copied into the in-memory LogBuffer.
// The dashboard calls this to move logs off the terminal it draws on.
func Configure(outputs ...string) error {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	// ログ設定を構築
	config := zap.NewProductionConfig()
	config.OutputPaths = outputs
	config.ErrorOutputPaths = outputs
	config.Level = level

	buffer := GetLogBuffer()
	built, err := config.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, newBufferCore(buffer, level))
	}))
	if err != nil {
		return err
	}
	Log = built

	// Zap ロガーを標準ロガーとして設定
	zapLogger := zap.NewStdLog(Log)
	log.SetFlags(0)
	log.SetOutput(zapLogger.Writer())
	return nil
}

// Debug は debug レベルでのログ出力
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Info は info レベルでのログ出力
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Warn は warn レベルでのログ出力
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error は error レベルでのログ出力
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal は fatal レベルでのログ出力し、os.Exit(1) を呼び出す
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.Logger {
	return Log.With(zap.String("component", component))
}

// SetLevel changes the level of every logger built by this package,
// including ones already handed out.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// ReloadFromEnv re-reads LOG_LEVEL and LOG_OUTPUT. The logger is built in
// init, before a .env file has been loaded.
func ReloadFromEnv() error {
	SetLevel(getZapLogLevel())
	if strings.TrimSpace(os.Getenv("LOG_OUTPUT")) == "" {
		return nil
	}
	return Configure(getOutputPaths()...)
}

// Sync flushes buffered log entries. Call it before the process exits.
func Sync() error {
	return Log.Sync()
}

func getOutputPaths() []string {
	raw := strings.TrimSpace(os.Getenv("LOG_OUTPUT"))
	if raw == "" {
		return []string{"stdout"}
	}
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func getZapLogLevel() zapcore.Level {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	switch levelStr {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
