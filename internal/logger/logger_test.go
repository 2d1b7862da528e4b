package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	l, err := New(Config{})
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if !l.Core().Enabled(zapcore.InfoLevel) || l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("default level should be info")
	}

	l, err = New(Config{Level: "debug", DevMode: true})
	if err != nil {
		t.Fatalf("dev config: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be enabled")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestZapConfig_Encoders(t *testing.T) {
	for _, dev := range []bool{true, false} {
		zc := zapConfig(dev)
		if zc.EncoderConfig.TimeKey != "ts" || zc.EncoderConfig.CallerKey != "caller" {
			t.Fatalf("dev=%v: unexpected keys %q %q", dev, zc.EncoderConfig.TimeKey, zc.EncoderConfig.CallerKey)
		}
		if dev && zc.Encoding != "console" {
			t.Fatalf("dev encoding = %q", zc.Encoding)
		}
		if !dev && (zc.Encoding != "json" || zc.Sampling == nil) {
			t.Fatalf("prod should be sampled json, got %q", zc.Encoding)
		}
	}
}
