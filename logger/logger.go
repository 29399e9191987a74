// Package logger wraps zerolog with the component-scoped, printf-style API the
// rest of the module logs through.
package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel = "WSSCONN_LOG_LEVEL"
	EnvDebug    = "WSSCONN_DEBUG"

	componentKey = "component"
)

type Config struct {
	// Level is one of trace, debug, info, warn, error or disabled. Empty means info.
	Level string

	// FilePath enables a rotating log file in addition to the console writers.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int

	ConsoleWriters []io.Writer
	NoColor        bool
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	if config == nil {
		config = &Config{}
	}

	level, err := ToLogLevel(config.Level)
	if err != nil {
		return nil, err
	}
	level = applyEnvOverrides(level)

	writers := []io.Writer{}
	for _, w := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    config.NoColor,
		})
	}

	if config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    orDefault(config.MaxSizeMB, 10),
			MaxBackups: orDefault(config.MaxBackups, 3),
		})
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: zl}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// ToLogLevel parses a level name. Unknown names are an error, empty is info.
func ToLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off", "none":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %q", level)
	}
}

func applyEnvOverrides(level zerolog.Level) zerolog.Level {
	if raw, ok := os.LookupEnv(EnvLogLevel); ok {
		if lvl, err := ToLogLevel(raw); err == nil && strings.TrimSpace(raw) != "" {
			level = lvl
		}
	}
	if raw, ok := os.LookupEnv(EnvDebug); ok {
		if debug, err := strconv.ParseBool(raw); err == nil && debug && level > zerolog.DebugLevel {
			level = zerolog.DebugLevel
		}
	}
	return level
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// GetComponentLogger returns a child logger tagged with the given component name
func (l *Logger) GetComponentLogger(component string) *Logger {
	return l.With(componentKey, component)
}

// With returns a child logger carrying an extra string field
func (l *Logger) With(key, value string) *Logger {
	return &Logger{logger: l.logger.With().Str(key, value).Logger()}
}

func (l *Logger) Trace(msg string) {
	l.logger.Trace().Msg(msg)
}

func (l *Logger) Tracef(format string, v ...interface{}) {
	l.logger.Trace().Msgf(format, v...)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Msg(err.Error())
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}
