package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env     string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{"production", "", zapcore.InfoLevel, false},
		{"development", "", zapcore.DebugLevel, false},
		{"dev", "warn", zapcore.WarnLevel, false},
		{"", "error", zapcore.ErrorLevel, false},
		{"staging", "", 0, true},
		{"production", "loud", 0, true},
	}
	for _, tt := range tests {
		l, err := New(tt.env, tt.level)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q, %q) should fail", tt.env, tt.level)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q, %q) failed: %v", tt.env, tt.level, err)
			continue
		}
		if !l.Core().Enabled(tt.want) {
			t.Errorf("New(%q, %q) should enable %s", tt.env, tt.level, tt.want)
		}
		if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
			t.Errorf("New(%q, %q) should not enable %s", tt.env, tt.level, tt.want-1)
		}
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should default to a no-op logger")
	}
	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the stored logger")
	}
}
