package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s"]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*\d+\b`)
)

// level is shared by every Logger so SetLevel affects package-level loggers created at init.
var level = new(slog.LevelVar)

// Logger is a centralized structured logger writing JSON lines.
type Logger struct {
	out *slog.Logger
}

// New creates a Logger writing to stdout.
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

func NewWithWriter(w io.Writer) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{out: slog.New(h)}
}

// SetLevel accepts debug, info, warn or error. Unknown values fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
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

// Anonymize replaces sensitive information in logs (emails, tokens, IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	return s
}

func (l *Logger) log(lvl slog.Level, module, msg string, err error, attrs []any) {
	args := make([]any, 0, len(attrs)+4)
	if module != "" {
		args = append(args, "module", module)
	}
	if err != nil {
		args = append(args, "error", Anonymize(err.Error()))
	}
	args = append(args, attrs...)
	l.out.Log(context.Background(), lvl, Anonymize(msg), args...)
}

func (l *Logger) Info(module, msg string, attrs ...any) {
	l.log(slog.LevelInfo, module, msg, nil, attrs)
}

func (l *Logger) Debug(module, msg string, attrs ...any) {
	l.log(slog.LevelDebug, module, msg, nil, attrs)
}

func (l *Logger) Warn(module, msg string, err error, attrs ...any) {
	l.log(slog.LevelWarn, module, msg, err, attrs)
}

func (l *Logger) Error(module, msg string, err error, attrs ...any) {
	l.log(slog.LevelError, module, msg, err, attrs)
}
