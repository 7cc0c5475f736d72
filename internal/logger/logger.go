package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel atomic.Int32

	mu      sync.RWMutex
	handler slog.Handler = newHandler("text", os.Stdout)
	closer  io.Closer
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	if l, ok := ParseLevel(level); ok {
		currentLevel.Store(int32(l))
	}
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// Configure sets level, format ("text" or "json") and output in one call.
//
// Output is "stdout", "stderr" or a file path. A previously opened log file
// is closed once the new handler is in place.
func Configure(level, format, output string) error {
	if _, ok := ParseLevel(level); !ok {
		return fmt.Errorf("invalid log level %q", level)
	}

	var (
		w    io.Writer
		file *os.File
	)
	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		w, file = f, f
	}

	switch strings.ToLower(format) {
	case "", "text", "json":
	default:
		if file != nil {
			_ = file.Close()
		}
		return fmt.Errorf("invalid log format %q", format)
	}

	SetLevel(level)

	mu.Lock()
	prev := closer
	handler = newHandler(format, w)
	closer = nil
	if file != nil {
		closer = file
	}
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// SetOutput redirects log output to w using the text format.
func SetOutput(w io.Writer) {
	mu.Lock()
	handler = newHandler("text", w)
	mu.Unlock()
}

func newHandler(format string, w io.Writer) slog.Handler {
	// Level filtering happens in log(), the handler accepts everything.
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func log(level Level, format string, v ...any) {
	if level < GetLevel() {
		return
	}

	mu.RLock()
	h := handler
	mu.RUnlock()

	slog.New(h).Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, v...))
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
