package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	global     *Logger
	globalLock sync.RWMutex

	// component name -> *Logger
	componentLoggers sync.Map
)

func init() {
	global = &Logger{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// Init builds a logger from cfg and installs it as the global one.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetGlobal(l)
	return nil
}

// SetGlobal replaces the global logger and drops cached component loggers so
// they are rebuilt on top of the new one.
func SetGlobal(l *Logger) {
	globalLock.Lock()
	global = l
	globalLock.Unlock()

	componentLoggers.Range(func(key, _ any) bool {
		componentLoggers.Delete(key)
		return true
	})
}

func GetGlobal() *Logger {
	globalLock.RLock()
	defer globalLock.RUnlock()
	return global
}

// Component returns a logger tagged with component=name. Loggers are cached
// until the global logger changes.
func Component(name string) *Logger {
	if cached, ok := componentLoggers.Load(name); ok {
		return cached.(*Logger)
	}

	l := GetGlobal().WithField("component", name)
	actual, _ := componentLoggers.LoadOrStore(name, l)
	return actual.(*Logger)
}

// SetLevel changes the level of the global logger.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	globalLock.Lock()
	global = &Logger{logger: global.logger.Level(lvl)}
	globalLock.Unlock()

	componentLoggers.Range(func(key, _ any) bool {
		componentLoggers.Delete(key)
		return true
	})
	return nil
}

// GetLevel returns the level of the global logger.
func GetLevel() string {
	return GetGlobal().logger.GetLevel().String()
}

func Debug() *zerolog.Event {
	return GetGlobal().Debug()
}

func Info() *zerolog.Event {
	return GetGlobal().Info()
}

func Warn() *zerolog.Event {
	return GetGlobal().Warn()
}

func Error() *zerolog.Event {
	return GetGlobal().Error()
}
