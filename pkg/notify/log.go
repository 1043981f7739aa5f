package notify

import (
	"context"
	"log/slog"
	"time"
)

// LogNotifier writes session events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new log notifier.
// If logger is nil, a default logger is used.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event. Expired and rejected sessions are warnings.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	switch event.Type {
	case TypeExpired, TypeRejected:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("type", event.Type),
		slog.String("message", event.Message),
	}
	if event.Subject != "" {
		attrs = append(attrs, slog.String("user", event.Subject))
	}
	if event.Timestamp != 0 {
		attrs = append(attrs, slog.Time("at", time.Unix(event.Timestamp, 0)))
	}
	n.logger.LogAttrs(ctx, level, "session event", attrs...)
	return nil
}
