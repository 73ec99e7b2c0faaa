package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

type txKey struct{}

type usageKey struct {
	tenant uuid.UUID
	key    plans.Key
}

type overrideKey struct {
	user   uuid.UUID
	perm   uuid.UUID
	tenant uuid.UUID
	kind   rbac.ScopeKind
	scope uuid.UUID
}

type grantKey struct {
	role uuid.UUID
	perm uuid.UUID
}

type state struct {
	tenants       map[uuid.UUID]subscription.Tenant
	subscriptions map[uuid.UUID]subscription.Subscription
	usage         map[usageKey]decimal.Decimal
	branches      map[uuid.UUID]branch.Branch
	permissions   map[uuid.UUID]rbac.Permission
	roles         map[uuid.UUID]rbac.Role
	grants        map[grantKey]rbac.RolePermission
	userRoles     map[uuid.UUID]rbac.UserRole
	overrides     map[overrideKey]rbac.UserPermission
}

func newState() state {
	return state{
		tenants:       make(map[uuid.UUID]subscription.Tenant),
		subscriptions: make(map[uuid.UUID]subscription.Subscription),
		usage:         make(map[usageKey]decimal.Decimal),
		branches:      make(map[uuid.UUID]branch.Branch),
		permissions:   make(map[uuid.UUID]rbac.Permission),
		roles:         make(map[uuid.UUID]rbac.Role),
		grants:        make(map[grantKey]rbac.RolePermission),
		userRoles:     make(map[uuid.UUID]rbac.UserRole),
		overrides:     make(map[overrideKey]rbac.UserPermission),
	}
}

func (st state) clone() state {
	return state{
		tenants:       maps.Clone(st.tenants),
		subscriptions: maps.Clone(st.subscriptions),
		usage:         maps.Clone(st.usage),
		branches:      maps.Clone(st.branches),
		permissions:   maps.Clone(st.permissions),
		roles:         maps.Clone(st.roles),
		grants:        maps.Clone(st.grants),
		userRoles:     maps.Clone(st.userRoles),
		overrides:     maps.Clone(st.overrides),
	}
}

// Store keeps every governance table in memory.
// Transactions are serialized by a single mutex and rolled back by
// restoring a snapshot, audit events included.
type Store struct {
	mu     sync.Mutex
	st     state
	events *audit.MemoryStorage
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for updated_at columns the callers don't pass.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		st:     newState(),
		events: audit.NewMemoryStorage(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn with exclusive access to the store. Any error, or a
// panic, discards every write fn made. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	mark := s.events.Len()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
			s.events.Truncate(mark)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store mutex unless ctx already runs inside this store's transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Store appends audit events. Inside a transaction they roll back with it.
func (s *Store) Store(ctx context.Context, events ...audit.Event) error {
	defer s.lock(ctx)()
	return s.events.Store(ctx, events...)
}

// Query returns matching audit events, oldest first.
func (s *Store) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Event, error) {
	defer s.lock(ctx)()
	return s.events.Query(ctx, criteria)
}

// Events returns every committed audit event.
func (s *Store) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Events()
}

func sortedValues[K comparable, V any](m map[K]V, keep func(V) bool, cmp func(a, b V) int) []V {
	out := make([]V, 0)
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, cmp)
	return out
}
