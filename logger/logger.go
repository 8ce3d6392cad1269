package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config describes how log output is produced.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr or a file path
	TimeFormat string `mapstructure:"time_format"`
}

// Logger wraps zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

// New builds a Logger from cfg. Unknown levels fall back to info.
func New(cfg Config) (*Logger, error) {
	cfg = sanitize(&cfg)

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()

	return &Logger{
		logger: logger,
	}, nil
}

// NewWithWriter builds a Logger writing JSON to w. Mostly useful in tests.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{logger: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stderr":
		return os.Stderr, nil
	case "stdout", "":
		return os.Stdout, nil
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		return file, nil
	}
}

func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal logs at fatal level and exits the process once the event is sent.
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// With returns a context for deriving a child logger.
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// WithField returns a child logger carrying one extra field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields returns a child logger carrying all fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

func (l *Logger) Log() zerolog.Logger {
	return l.logger
}

// sanitize fills empty Config fields with defaults.
func sanitize(cfg *Config) Config {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	return *cfg
}
