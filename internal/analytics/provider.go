package analytics

import (
	"context"
	"log/slog"
)

// Provider delivers analytics calls somewhere. Track, Screen, Identify and
// Reset never fail from the caller's point of view.
type Provider interface {
	Initialize(ctx context.Context) error
	Track(ctx context.Context, event Event, props Properties)
	Screen(ctx context.Context, name string, props Properties)
	Identify(ctx context.Context, userID string, props *UserProperties)
	Reset(ctx context.Context)
}

var _ Provider = (*ConsoleProvider)(nil)

// ConsoleProvider logs every call. Used in development.
type ConsoleProvider struct {
	logger *slog.Logger
}

// NewConsoleProvider returns a provider logging to logger (slog.Default()
// when nil).
func NewConsoleProvider(logger *slog.Logger) *ConsoleProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleProvider{logger: logger.With("component", "analytics")}
}

func (p *ConsoleProvider) Initialize(context.Context) error {
	p.logger.Info("analytics initialized", "provider", "console")
	return nil
}

func (p *ConsoleProvider) Track(ctx context.Context, event Event, props Properties) {
	p.logger.InfoContext(ctx, "analytics event", "event", string(event), "properties", map[string]any(props))
}

func (p *ConsoleProvider) Screen(ctx context.Context, name string, props Properties) {
	p.logger.InfoContext(ctx, "analytics screen", "screen", name, "properties", map[string]any(props))
}

func (p *ConsoleProvider) Identify(ctx context.Context, userID string, props *UserProperties) {
	attrs := []any{"user_id", userID}
	if props != nil {
		attrs = append(attrs, "properties", *props)
	}
	p.logger.InfoContext(ctx, "analytics identify", attrs...)
}

func (p *ConsoleProvider) Reset(ctx context.Context) {
	p.logger.InfoContext(ctx, "analytics reset")
}
