package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
)

const (
	logFileMaxAge       = 7 * 24 * time.Hour
	logFileRotationTime = 24 * time.Hour
)

var log = zerolog.New(io.Discard)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls where and how much the logger writes.
type Options struct {
	Level     string
	File      string
	IsService bool
	// Out receives console output. Defaults to os.Stdout.
	Out io.Writer
}

// Init initializes the global logger based on the given options
func Init(opts Options) error {
	errFactory := errors.New()

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	if opts.IsService {
		console.TimeFormat = ""
		console.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	var output io.Writer = console
	if opts.File != "" {
		rotated, err := rotatelogs.New(
			opts.File+".%Y%m%d",
			rotatelogs.WithLinkName(opts.File),
			rotatelogs.WithMaxAge(logFileMaxAge),
			rotatelogs.WithRotationTime(logFileRotationTime),
		)
		if err != nil {
			return errFactory.Wrap(errors.ErrLogFile, err)
		}
		output = zerolog.MultiLevelWriter(console, rotated)
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	SetLogLevel(level)

	return nil
}

// ParseLevel maps a configured level name to a LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}

	return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

type componentLogger struct {
	component string
	nop       bool
}

// With returns a Logger that tags every event with the component name.
// Events go through the global logger, so Init may run after With.
func With(component string) Logger {
	return &componentLogger{component: component}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &componentLogger{nop: true}
}

func (l *componentLogger) wrap(e *zerolog.Event) *LogEvent {
	if l.nop {
		return &LogEvent{nopLogger.Debug()}
	}
	return &LogEvent{e.Str("component", l.component)}
}

var nopLogger = zerolog.Nop()

func (l *componentLogger) Debug() *LogEvent { return l.wrap(log.Debug()) }
func (l *componentLogger) Info() *LogEvent  { return l.wrap(log.Info()) }
func (l *componentLogger) Warn() *LogEvent  { return l.wrap(log.Warn()) }
func (l *componentLogger) Error() *LogEvent { return l.wrap(log.Error()) }
