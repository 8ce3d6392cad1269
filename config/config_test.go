package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// endpointConfig is a minimal Configurable used to exercise the loader.
type endpointConfig struct {
	URL     string        `mapstructure:"url"`
	Retries int           `mapstructure:"retries"`
	Verbose bool          `mapstructure:"verbose"`
	Timeout time.Duration `mapstructure:"timeout"`
	Auth    struct {
		User string `mapstructure:"user"`
	} `mapstructure:"auth"`
}

func (c *endpointConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	return nil
}

func (c *endpointConfig) SetDefaults(l *Loader) {
	l.SetDefault("retries", 3)
	l.SetDefault("auth.user", "")
}

type rejectingConfig struct {
	URL string `mapstructure:"url"`
}

func (c *rejectingConfig) Validate() error { return errors.New("always invalid") }

func writeFileAt(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetEnvAndConfigPath(t *testing.T) {
	tests := []struct {
		env      string
		wantEnv  string
		wantPath string
	}{
		{env: "", wantEnv: DefaultEnv, wantPath: filepath.Join(ConfigDir, "dev.yaml")},
		{env: "production", wantEnv: "production", wantPath: filepath.Join(ConfigDir, "production.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.wantEnv, func(t *testing.T) {
			t.Setenv("APP_ENV", tt.env)
			assert.Equal(t, tt.wantEnv, GetEnv())
			assert.Equal(t, tt.wantPath, getConfigPath())
		})
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()

	t.Run("file values and defaults", func(t *testing.T) {
		path := writeFileAt(t, dir, "ok.yaml", "url: tcp://b:1\nverbose: true\ntimeout: 30s\n")

		cfg := &endpointConfig{}
		require.NoError(t, NewLoader(path).Load(cfg))
		assert.Equal(t, "tcp://b:1", cfg.URL)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 3, cfg.Retries)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeFileAt(t, dir, "env.yaml", "url: tcp://file:1\n")
		t.Setenv("APP_URL", "tcp://env:1")
		t.Setenv("APP_AUTH_USER", "svc")

		cfg := &endpointConfig{}
		require.NoError(t, NewLoader(path).Load(cfg))
		assert.Equal(t, "tcp://env:1", cfg.URL)
		assert.Equal(t, "svc", cfg.Auth.User)
	})

	t.Run("missing file", func(t *testing.T) {
		err := NewLoader(filepath.Join(dir, "none.yaml")).Load(&endpointConfig{})
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("missing optional file", func(t *testing.T) {
		loader := NewLoader(filepath.Join(dir, "absent.yaml")).Optional()
		loader.SetDefault("url", "tcp://default:1")

		cfg := &endpointConfig{}
		require.NoError(t, loader.Load(cfg))
		assert.Equal(t, "tcp://default:1", cfg.URL)
	})

	t.Run("unreadable yaml", func(t *testing.T) {
		path := writeFileAt(t, dir, "broken.yaml", "url: [unclosed\n")
		err := NewLoader(path).Load(&endpointConfig{})
		assert.ErrorIs(t, err, ErrConfigInvalid)
	})

	t.Run("wrong value type", func(t *testing.T) {
		path := writeFileAt(t, dir, "types.yaml", "url: tcp://b:1\nretries: many\n")
		err := NewLoader(path).Load(&endpointConfig{})
		assert.ErrorIs(t, err, ErrConfigUnmarshal)
	})

	t.Run("validation failure", func(t *testing.T) {
		path := writeFileAt(t, dir, "rejected.yaml", "url: tcp://b:1\n")
		err := NewLoader(path).Load(&rejectingConfig{})
		assert.ErrorIs(t, err, ErrConfigValidation)
		assert.Contains(t, err.Error(), "always invalid")
	})

	t.Run("package level load", func(t *testing.T) {
		path := writeFileAt(t, dir, "global.yaml", "url: tcp://global:1\n")
		cfg := &endpointConfig{}
		require.NoError(t, Load(cfg, path))
		assert.Equal(t, "tcp://global:1", cfg.URL)
	})
}

func TestLoader_Paths(t *testing.T) {
	dir := t.TempDir()
	path := writeFileAt(t, dir, "config.yaml", "url: tcp://b:1\n")

	loader := NewLoader("elsewhere.yaml")
	assert.Equal(t, "elsewhere.yaml", loader.GetConfigPath())

	loader.SetConfigPath(path)
	require.NoError(t, loader.Load(&endpointConfig{}))
	assert.Equal(t, dir, loader.GetConfigDir())
}

func TestLoader_Getters(t *testing.T) {
	path := writeFileAt(t, t.TempDir(), "values.yaml", `
name: sender
port: 42
tls: true
heartbeat: 1h30m
`)
	loader := NewLoader(path)
	require.NoError(t, loader.viper.ReadInConfig())
	loader.SetDefault("fallback", "from-default")

	assert.Equal(t, "sender", loader.GetString("name"))
	assert.Equal(t, 42, loader.GetInt("port"))
	assert.True(t, loader.GetBool("tls"))
	assert.Equal(t, 90*time.Minute, loader.GetDuration("heartbeat"))
	assert.Equal(t, "from-default", loader.GetString("fallback"))
	assert.Empty(t, loader.GetString("absent"))
}

func TestLoader_WatchConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFileAt(t, dir, "watched.yaml", "url: tcp://before:1\n")

	loader := NewLoader(path)
	cfg := &endpointConfig{}
	require.NoError(t, loader.Load(cfg))

	changed := make(chan struct{}, 1)
	loader.OnConfigChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	loader.WatchConfig()

	require.NoError(t, os.WriteFile(path, []byte("url: tcp://after:1\n"), 0o600))

	select {
	case <-changed:
		assert.Equal(t, "tcp://after:1", loader.GetString("url"))
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func BenchmarkLoad(b *testing.B) {
	path := writeFileAt(b, b.TempDir(), "bench.yaml", "url: tcp://b:1\nretries: 5\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Load(&endpointConfig{}, path)
	}
}
