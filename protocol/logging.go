package protocol

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLogLevel converts a log level string to zerolog.Level.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogFile describes size-rotated log file output
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogger creates a zerolog logger on stdout with the specified level and format.
func InitLogger(logLevel, logFormat string) zerolog.Logger {
	return NewLogger(os.Stdout, logLevel, logFormat)
}

// InitFileLogger is InitLogger that also writes JSON lines to a rotated
// file. The returned closer releases the file.
func InitFileLogger(logLevel, logFormat string, file LogFile) (zerolog.Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   true,
	}
	out := zerolog.MultiLevelWriter(formatWriter(os.Stdout, logFormat), rotator)
	return newLogger(out, logLevel), rotator
}

// NewLogger creates a zerolog logger writing to out. Format "console" gives
// human-readable output, anything else gives JSON lines.
func NewLogger(out io.Writer, logLevel, logFormat string) zerolog.Logger {
	return newLogger(formatWriter(out, logFormat), logLevel)
}

func newLogger(out io.Writer, logLevel string) zerolog.Logger {
	level := ParseLogLevel(logLevel)
	zerolog.SetGlobalLevel(level)

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func formatWriter(out io.Writer, logFormat string) io.Writer {
	if strings.EqualFold(logFormat, "console") {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

// Component returns a child logger tagged with the component name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
