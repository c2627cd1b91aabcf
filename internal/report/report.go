// Package report is the error-reporting sink used by the offline queues.
//
// Individual mutation failures are invisible to the end user; only permanent
// failures reach CaptureException. Breadcrumbs record the queue's lifecycle so
// a captured exception arrives with the events that led to it.
package report

import (
	"context"
	"log/slog"
)

// Level is the severity of a breadcrumb.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Breadcrumb is a lightweight event recorded ahead of a possible exception.
type Breadcrumb struct {
	Category string
	Message  string
	Data     map[string]any
	Level    Level
}

// Reporter accepts exceptions with context and breadcrumbs.
// Implementations must be safe for concurrent use.
type Reporter interface {
	CaptureException(err error, fields map[string]any)
	AddBreadcrumb(b Breadcrumb)
}

// Logger reports through slog.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a Reporter writing to logger (slog.Default() when nil).
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (l *Logger) CaptureException(err error, fields map[string]any) {
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "error", err)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	l.logger.Error("exception captured", attrs...)
}

func (l *Logger) AddBreadcrumb(b Breadcrumb) {
	attrs := make([]any, 0, 2+2*len(b.Data))
	attrs = append(attrs, "category", b.Category)
	for k, v := range b.Data {
		attrs = append(attrs, k, v)
	}
	l.logger.Log(context.Background(), b.Level.slogLevel(), b.Message, attrs...)
}

func (lv Level) slogLevel() slog.Level {
	switch lv {
	case LevelError:
		return slog.LevelError
	case LevelWarning:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) CaptureException(error, map[string]any) {}
func (Nop) AddBreadcrumb(Breadcrumb)               {}
