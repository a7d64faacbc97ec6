package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestSetLevelAffectsExistingLoggers(t *testing.T) {
	named := Named("test")
	t.Cleanup(func() { SetLevel(zapcore.InfoLevel) })

	SetLevel(zapcore.DebugLevel)
	if !named.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug disabled after SetLevel(debug)")
	}
	SetLevel(zapcore.ErrorLevel)
	if named.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn enabled after SetLevel(error)")
	}
}

func TestReloadFromEnvAppliesLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel(zapcore.InfoLevel) })
	t.Setenv("LOG_OUTPUT", "")
	t.Setenv("LOG_LEVEL", "debug")

	if err := ReloadFromEnv(); err != nil {
		t.Fatalf("ReloadFromEnv: %v", err)
	}
	if !Log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("LOG_LEVEL=debug not applied")
	}
}
