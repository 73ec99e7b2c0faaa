package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
}

// Querier reads stored audit events.
type Querier interface {
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}

// Extractor reads an identifier from the context.
type Extractor func(context.Context) (string, bool)

// Logger writes audit events to a Storage. Events written with a context that
// carries a store transaction commit or roll back with it.
type Logger struct {
	storage Storage
	tenant  Extractor
	user    Extractor
	now     func() time.Time
}

type Option func(*Logger)

// WithTenantIDExtractor fills Event.TenantID from the context unless an event option sets it.
func WithTenantIDExtractor(fn Extractor) Option {
	return func(l *Logger) { l.tenant = fn }
}

// WithUserIDExtractor fills Event.UserID from the context unless an event option sets it.
func WithUserIDExtractor(fn Extractor) Option {
	return func(l *Logger) { l.user = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger panics on a nil storage.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records a completed action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.write(ctx, action, ResultSuccess, nil, opts)
}

// LogFailure records an action that was refused, such as a rejected delegation.
func (l *Logger) LogFailure(ctx context.Context, action string, reason error, opts ...EventOption) error {
	return l.write(ctx, action, ResultFailure, reason, opts)
}

// LogError records an action that broke while being carried out.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.write(ctx, action, ResultError, err, opts)
}

func (l *Logger) write(ctx context.Context, action string, result Result, cause error, opts []EventOption) error {
	e := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	e.TenantID = extract(ctx, l.tenant)
	e.UserID = extract(ctx, l.user)

	for _, opt := range opts {
		opt(&e)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, e)
}

func extract(ctx context.Context, fn Extractor) string {
	if fn == nil {
		return ""
	}
	if v, ok := fn(ctx); ok {
		return v
	}
	return ""
}
