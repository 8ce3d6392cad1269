package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Custom error types for better error handling
var (
	ErrConfigNotFound   = errors.New("config file not found")
	ErrConfigInvalid    = errors.New("invalid config")
	ErrConfigValidation = errors.New("config validation failed")
	ErrConfigUnmarshal  = errors.New("failed to unmarshal config")
)

const (
	// DefaultEnv значение окружения по умолчанию
	DefaultEnv = "dev"
	// ConfigDir директория с конфигурационными файлами
	ConfigDir = "configs"
	// EnvPrefix префикс переменных окружения (APP_BROKER_URL -> broker.url)
	EnvPrefix = "APP"
)

// Configurable определяет интерфейс для любой конфигурации
type Configurable interface {
	Validate() error
}

// Defaulter is implemented by configurations that register their default
// values with the loader before unmarshalling. Registered keys are also the
// keys that environment variables can override.
type Defaulter interface {
	SetDefaults(l *Loader)
}

// Loader предоставляет функциональность для загрузки конфигурации
type Loader struct {
	viper    *viper.Viper
	optional bool
}

// getEnv возвращает текущее окружение
func getEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return DefaultEnv
}

// getConfigPath возвращает путь к конфигурационному файлу
func getConfigPath() string {
	env := getEnv()
	return filepath.Join(ConfigDir, fmt.Sprintf("%s.yaml", env))
}

// NewLoader создает новый загрузчик конфигурации
func NewLoader(configPath string) *Loader {
	v := viper.New()

	// Если путь не указан, используем путь по умолчанию
	if configPath == "" {
		configPath = getConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		viper: v,
	}
}

// Optional makes a missing config file non-fatal: Load then uses defaults,
// environment variables and bound flags only.
func (l *Loader) Optional() *Loader {
	l.optional = true
	return l
}

// BindFlags binds every flag of fs to the config key of the same name. A flag
// overrides the file and environment only when it was set explicitly.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	return l.viper.BindPFlags(fs)
}

// BindFlag binds one flag to an arbitrary config key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	return l.viper.BindPFlag(key, flag)
}

// Load загружает конфигурацию из файла в переданную структуру
func (l *Loader) Load(cfg Configurable) error {
	if d, ok := cfg.(Defaulter); ok {
		d.SetDefaults(l)
	}

	// Чтение файла конфига
	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		switch {
		case missing && l.optional:
		case missing:
			return fmt.Errorf("%w: %v", ErrConfigNotFound, err)
		default:
			return fmt.Errorf("%w: failed to read config file: %v", ErrConfigInvalid, err)
		}
	}

	if err := l.viper.UnmarshalExact(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigUnmarshal, err)
	}

	// Проверка конфигурации
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	return nil
}

// GetConfigPath возвращает путь к файлу конфигурации
func (l *Loader) GetConfigPath() string {
	return l.viper.ConfigFileUsed()
}

// SetConfigPath устанавливает путь к файлу конфигурации
func (l *Loader) SetConfigPath(path string) {
	l.viper.SetConfigFile(path)
}

// GetConfigDir возвращает директорию с конфигурацией
func (l *Loader) GetConfigDir() string {
	return filepath.Dir(l.viper.ConfigFileUsed())
}

// Load загружает конфигурацию из файла в переданную структуру
func Load(cfg Configurable, configPath string) error {
	loader := NewLoader(configPath)
	return loader.Load(cfg)
}

// WatchConfig запускает наблюдение за изменениями конфигурационного файла
func (l *Loader) WatchConfig() {
	l.viper.WatchConfig()
}

// OnConfigChange устанавливает callback для обработки изменений конфигурации
func (l *Loader) OnConfigChange(fn func()) {
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		fn()
	})
}

// GetString возвращает строковое значение из конфигурации
func (l *Loader) GetString(key string) string {
	return l.viper.GetString(key)
}

// GetInt возвращает целочисленное значение из конфигурации
func (l *Loader) GetInt(key string) int {
	return l.viper.GetInt(key)
}

// GetBool возвращает булево значение из конфигурации
func (l *Loader) GetBool(key string) bool {
	return l.viper.GetBool(key)
}

// GetDuration возвращает значение длительности из конфигурации
func (l *Loader) GetDuration(key string) time.Duration {
	return l.viper.GetDuration(key)
}

// SetDefault устанавливает значение по умолчанию для ключа
func (l *Loader) SetDefault(key string, value interface{}) {
	l.viper.SetDefault(key, value)
}

// GetEnv возвращает текущее окружение
func GetEnv() string {
	return getEnv()
}
