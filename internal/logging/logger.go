package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

var (
	Logger *slog.Logger
	level  = new(slog.LevelVar)
)

func init() {
	Logger = slog.New(newHandler(os.Stdout, os.Getenv("LOG_FORMAT")))
}

func newHandler(w io.Writer, format string) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Init reconfigures the package logger. An empty format keeps LOG_FORMAT.
func Init(lvl, format string) {
	SetLevel(lvl)
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	Logger = slog.New(newHandler(os.Stdout, format))
}

func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// Shortcut helpers. They resolve Logger at call time so Init takes effect.
func Info(msg string, args ...any)  { Logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger.Warn(msg, args...) }
func Error(msg string, args ...any) { Logger.Error(msg, args...) }
func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }

func Fatal(msg string, args ...any) {
	Logger.Error(msg, args...)
	os.Exit(1)
}

// WrapSlog returns a *log.Logger that forwards each line to the package logger
// at debug level. goburrow/modbus handlers accept it as their Logger.
func WrapSlog(kv ...any) *log.Logger {
	return log.New(&slogWriter{attrs: kv}, "", 0)
}

type slogWriter struct {
	attrs []any
}

func (w *slogWriter) Write(p []byte) (int, error) {
	Logger.Debug(strings.TrimRight(string(p), "\r\n"), w.attrs...)
	return len(p), nil
}
