package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "json config without output",
			config: &Config{
				Level:  "debug",
				Format: "json",
			},
		},
		{
			name: "console config",
			config: &Config{
				Level:  "info",
				Format: "console",
				Output: io.Discard,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.Info("connected")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "connected", logEntry["message"])
	assert.NotEmpty(t, logEntry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "debug", Format: "json", Output: buf})

	child := logger.With().
		Str("client", "client.admin").
		Int64("pool_id", 3).
		Uint64("instance", 4242).
		Logger()

	child.Debug("io context opened")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "client.admin", logEntry["client"])
	assert.Equal(t, float64(3), logEntry["pool_id"])
	assert.Equal(t, float64(4242), logEntry["instance"])
	assert.Equal(t, "io context opened", logEntry["message"])
}

func TestLogger_WarnWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "warn", Format: "json", Output: buf})

	logger.WarnWith("connect failed", errors.New("connection refused"), map[string]interface{}{
		"transport": "minio",
		"status":    -107,
	})

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "warn", logEntry["level"])
	assert.Equal(t, "connection refused", logEntry["error"])
	assert.Equal(t, "minio", logEntry["transport"])
	assert.Equal(t, float64(-107), logEntry["status"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := logger.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "from context", logEntry["message"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Same(t, Global(), FromContext(context.Background()))
}

func TestLogger_LevelsArePerInstance(t *testing.T) {
	quietBuf := &bytes.Buffer{}
	loudBuf := &bytes.Buffer{}

	quiet := New(&Config{Level: "error", Format: "json", Output: quietBuf})
	loud := New(&Config{Level: "debug", Format: "json", Output: loudBuf})

	quiet.Info("dropped")
	loud.Debug("kept")

	assert.Empty(t, quietBuf.String())
	assert.NotEmpty(t, loudBuf.String())
	assert.True(t, loud.Enabled("debug"))
	assert.False(t, quiet.Enabled("warn"))
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{
			name:     "debug level logs debug",
			level:    "debug",
			logFunc:  func(l *Logger) { l.Debug("debug message") },
			expected: true,
		},
		{
			name:     "warn level skips info",
			level:    "warn",
			logFunc:  func(l *Logger) { l.Info("info message") },
			expected: false,
		},
		{
			name:     "error level logs error",
			level:    "error",
			logFunc:  func(l *Logger) { l.Error("error message") },
			expected: true,
		},
		{
			name:     "off disables everything",
			level:    "off",
			logFunc:  func(l *Logger) { l.Error("error message") },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(&Config{Level: tt.level, Format: "json", Output: buf})

			tt.logFunc(logger)

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Errorf("ignored %d", 1) })
}

func BenchmarkLogger_WithFields(b *testing.B) {
	logger := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.With().
			Str("oid", "bench").
			Int("chunk", i).
			Logger().
			Info("advance")
	}
}
