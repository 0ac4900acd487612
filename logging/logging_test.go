package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"fatal", FatalLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultLoggerRoutesByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&stdout, &stderr)

	logger.Debug("hidden")
	logger.Info("loaded matrix", Fields{"units": 3, "bins": 4})
	logger.Warn("short bin")
	logger.Error(errors.New("boom"), "decode failed")

	assert.Equal(t, "[INFO] loaded matrix {bins=4 units=3}\n", stdout.String())
	assert.Contains(t, stderr.String(), "[WARN] short bin\n")
	assert.Contains(t, stderr.String(), "[ERROR] decode failed: boom\n")
	assert.NotContains(t, stdout.String(), "hidden")

	logger.SetLevel(DebugLevel)
	logger.Debug("shown")
	assert.Contains(t, stdout.String(), "[DEBUG] shown")
}

func TestWithFieldsAndContext(t *testing.T) {
	var stdout bytes.Buffer
	base := NewDefaultLoggerWithWriters(&stdout, &stdout)

	ctx := ContextWithFields(context.Background(), Fields{"run_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"bin": 2})

	base.WithFields(Fields{"component": "pipeline"}).WithContext(ctx).Info("averaged")

	assert.Equal(t, "[INFO] averaged {bin=2 component=pipeline run_id=abc}\n", stdout.String())

	// The parent logger keeps its own field set
	stdout.Reset()
	base.Info("plain")
	assert.Equal(t, "[INFO] plain\n", stdout.String())
}

func TestFieldsFromContextMissing(t *testing.T) {
	_, ok := FieldsFromContext(context.Background())
	assert.False(t, ok)
}

func TestGlobalLoggerNilInstallsNoOp(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}
