package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "default config",
			config: Config{},
		},
		{
			name: "debug level",
			config: Config{
				Level:  "debug",
				Format: "json",
				Output: "stdout",
			},
		},
		{
			name: "file output",
			config: Config{
				Output: filepath.Join(t.TempDir(), "sender.log"),
			},
		},
		{
			name: "unwritable file",
			config: Config{
				Output: filepath.Join(t.TempDir(), "missing", "dir", "sender.log"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{
		logger: zerolog.New(&buf),
	}

	fields := map[string]interface{}{
		"key1": "value1",
		"key2": 42,
		"key3": true,
	}

	newLogger := l.WithFields(fields)
	newLogger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "key1") {
		t.Error("Field key1 not found in output")
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(NewWithWriter(&buf, zerolog.DebugLevel))
	t.Cleanup(func() { SetGlobal(Nop()) })

	Component("pool").Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"pool"`) {
		t.Errorf("component field missing: %s", buf.String())
	}
	if Component("pool") != Component("pool") {
		t.Error("component loggers should be cached")
	}
}

func TestGlobalFunctions(t *testing.T) {
	// Global helpers must not panic.
	Debug().Msg("global debug")
	Info().Msg("global info")
	Warn().Msg("global warn")
	Error().Msg("global error")
}

func TestSetLevel(t *testing.T) {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	for _, level := range validLevels {
		if err := SetLevel(level); err != nil {
			t.Errorf("SetLevel(%s) returned error: %v", level, err)
		}
		if got := GetLevel(); got != level {
			t.Errorf("GetLevel() = %s, want %s", got, level)
		}
	}

	if err := SetLevel("invalid"); err == nil {
		t.Error("SetLevel('invalid') should return error")
	}
}

func TestSanitizeConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    Config
		expected Config
	}{
		{
			name:  "empty config",
			input: Config{},
			expected: Config{
				Level:      "info",
				Format:     "json",
				Output:     "stdout",
				TimeFormat: time.RFC3339,
			},
		},
		{
			name:  "keeps explicit values",
			input: Config{Level: "warn", Format: "console"},
			expected: Config{
				Level:      "warn",
				Format:     "console",
				Output:     "stdout",
				TimeFormat: time.RFC3339,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitize(&tt.input)
			if result != tt.expected {
				t.Errorf("sanitize() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	cfg := Config{
		Level:  "debug",
		Format: "json",
		Output: "stdout",
	}

	if err := Init(cfg); err != nil {
		t.Errorf("Init() returned error: %v", err)
	}

	if GetGlobal() == nil {
		t.Error("Global logger not set after Init()")
	}
}
