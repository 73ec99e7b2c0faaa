package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/restokit/pkg/logger"
)

// Notifier delivers governance notifications. Delivery is best effort:
// callers log a returned error and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NoOp is a notifier that does nothing.
type NoOp struct{}

// Notify does nothing and returns nil.
func (NoOp) Notify(context.Context, Notification) error { return nil }

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier; a nil logger means slog.Default().
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l}
}

// Notify logs n at info level.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.LogAttrs(ctx, slog.LevelInfo, n.Title,
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		logger.TenantID(n.TenantID),
		logger.UserID(n.UserID),
		slog.String("message", n.Message),
	)
	return nil
}

// Multi fans a notification out to several notifiers.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// MultiOption configures a Multi.
type MultiOption func(*Multi)

// WithMultiLogger sets the logger for delivery failures.
func WithMultiLogger(l *slog.Logger) MultiOption {
	return func(m *Multi) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMulti creates a notifier that delivers through every given notifier.
func NewMulti(notifiers []Notifier, opts ...MultiOption) *Multi {
	m := &Multi{
		notifiers: notifiers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify delivers through all notifiers. A failing notifier is logged and skipped.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	for i, d := range m.notifiers {
		if err := d.Notify(ctx, n); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", n.ID),
				logger.UserID(n.UserID),
				slog.Int("notifier_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// Recorder keeps every notification it receives. Useful in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// OfKind returns recorded notifications of the given kind.
func (r *Recorder) OfKind(kind Kind) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
