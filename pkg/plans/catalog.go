package plans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Catalog is the read-only set of plans loaded at startup.
// It is safe for concurrent use.
type Catalog struct {
	plans    map[string]Plan
	problems []error
}

type catalogOptions struct {
	strict bool
	logger *slog.Logger
}

// CatalogOption configures NewCatalog.
type CatalogOption func(*catalogOptions)

// WithStrictValidation makes NewCatalog fail when any limit is malformed.
// By default malformed limits are kept and fail closed when read.
func WithStrictValidation() CatalogOption {
	return func(o *catalogOptions) { o.strict = true }
}

// WithLogger sets the logger used to report malformed limits at load time.
func WithLogger(l *slog.Logger) CatalogOption {
	return func(o *catalogOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewCatalog loads definitions from src and parses every limit once.
// Structural problems (missing id, duplicate id) always fail.
func NewCatalog(ctx context.Context, src Source, opts ...CatalogOption) (*Catalog, error) {
	o := catalogOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	defs, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	c := &Catalog{plans: make(map[string]Plan, len(defs))}
	for _, def := range defs {
		if def.ID == "" {
			return nil, errors.Join(ErrInvalidPlan, errors.New("plan id is empty"))
		}
		if _, dup := c.plans[def.ID]; dup {
			return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("duplicate plan id %s", def.ID))
		}
		plan, problems := compile(def)
		for _, p := range problems {
			o.logger.WarnContext(ctx, "plan definition problem",
				slog.String("plan_id", def.ID),
				slog.String("error", p.Error()))
		}
		c.problems = append(c.problems, problems...)
		c.plans[def.ID] = plan
	}

	if o.strict && len(c.problems) > 0 {
		return nil, errors.Join(append([]error{ErrInvalidPlan}, c.problems...)...)
	}
	return c, nil
}

// Plan returns the plan with the given id.
func (c *Catalog) Plan(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p.clone(), nil
}

// Plans returns all plans ordered by id.
func (c *Catalog) Plans() []Plan {
	ids := slices.Sorted(maps.Keys(c.plans))
	out := make([]Plan, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.plans[id].clone())
	}
	return out
}

// PublicPlans returns plans offered for self-service, ordered by id.
func (c *Catalog) PublicPlans() []Plan {
	return slices.DeleteFunc(c.Plans(), func(p Plan) bool { return !p.Public })
}

// Limit returns the parsed limit key of plan planID.
// A limit whose stored value is malformed yields ErrConfiguration.
func (c *Catalog) Limit(planID string, key Key) (Limit, error) {
	p, ok := c.plans[planID]
	if !ok {
		return Limit{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return p.Limit(key)
}

// Validate returns every problem found while loading, or nil.
func (c *Catalog) Validate() error {
	if len(c.problems) == 0 {
		return nil
	}
	return errors.Join(c.problems...)
}
