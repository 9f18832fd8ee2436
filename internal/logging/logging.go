// Package logging configures the process-wide zerolog logger with console
// and file sinks. Configuration is idempotent: once a logger is built,
// further Configure calls return it unchanged instead of attaching
// duplicate sinks.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the sinks and threshold of the configured logger.
type Options struct {
	// Name tags every record so multi-process log aggregation can tell
	// sources apart.
	Name string

	// File is the log file name inside Dir. Empty disables the file sink.
	File string

	// Dir is the directory for the file sink; created if absent.
	// Defaults to "logs".
	Dir string

	// Level is one of DEBUG, INFO, WARNING, ERROR, CRITICAL
	// (case-insensitive). Unrecognized values fall back to INFO.
	Level string

	// Console enables the console sink.
	Console bool

	// ConsoleOut overrides the console sink destination. Defaults to stderr.
	ConsoleOut io.Writer
}

var (
	mu         sync.Mutex
	configured bool
	logger     zerolog.Logger
)

// Configure builds the process logger. The first call attaches the requested
// sinks; later calls return the already-configured logger without touching
// sinks, regardless of the options passed. A failure to create the log
// directory or file is returned as an error and should be treated as fatal
// by the caller.
func Configure(opts Options) (zerolog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if configured {
		return logger, nil
	}

	if opts.Name == "" {
		opts.Name = "dbchat"
	}
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.ConsoleOut == nil {
		opts.ConsoleOut = os.Stderr
	}

	level := ParseLevel(opts.Level)

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, consoleWriter(opts.ConsoleOut, false))
	}

	filePath := ""
	if opts.File != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("create log directory %s: %w", opts.Dir, err)
		}
		filePath = filepath.Join(opts.Dir, opts.File)
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("open log file %s: %w", filePath, err)
		}
		writers = append(writers, consoleWriter(f, true))
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Caller().
		Str("logger", opts.Name).
		Logger()
	configured = true

	// Human-readable confirmation on stdout, separate from the sinks.
	fmt.Printf("Logging configured. Level: %s. File: %s. Console: %v.\n",
		strings.ToUpper(level.String()), fileOrNone(filePath), opts.Console)

	return logger, nil
}

// ParseLevel maps a level name to a zerolog level, falling back to INFO
// for anything unrecognized.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// consoleWriter renders records as
// "ts - logger - level - file:line - message" lines.
func consoleWriter(out io.Writer, noColor bool) io.Writer {
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			"logger",
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"logger"},
	}
	w.FormatTimestamp = func(i any) string { return fmt.Sprintf("%v -", i) }
	w.FormatLevel = func(i any) string { return strings.ToUpper(fmt.Sprintf("%v -", i)) }
	w.FormatCaller = func(i any) string { return fmt.Sprintf("%v -", i) }
	w.FormatPartValueByName = func(i any, name string) string {
		if name == "logger" {
			return fmt.Sprintf("%v -", i)
		}
		return fmt.Sprintf("%v", i)
	}
	return w
}

func fileOrNone(path string) string {
	if path == "" {
		return "(disabled)"
	}
	return path
}

// reset clears the configured state. Test hook only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	configured = false
	logger = zerolog.Logger{}
}
