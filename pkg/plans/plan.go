package plans

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// LimitDefinition is a limit as stored: a raw string tagged with its data type.
type LimitDefinition struct {
	Key      Key
	Value    string
	DataType DataType
}

// Definition is a plan as delivered by a Source, before limits are parsed.
type Definition struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	Currency     string
	BillingCycle BillingCycle
	Public       bool
	Limits       []LimitDefinition
}

// Limit is a parsed plan limit. A limit whose raw value did not parse keeps
// the parse error; reading it through Plan.Limit yields ErrConfiguration.
type Limit struct {
	Key   Key
	Type  DataType
	Raw   string
	Value Value
	err   error
}

// Err returns the parse error recorded at load time, if any.
func (l Limit) Err() error { return l.err }

// Plan is an immutable catalog entry with its limits resolved.
type Plan struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	Currency     string
	BillingCycle BillingCycle
	Public       bool
	Limits       map[Key]Limit
}

// Limit returns the parsed limit for key.
func (p Plan) Limit(key Key) (Limit, error) {
	l, ok := p.Limits[key]
	if !ok {
		return Limit{}, fmt.Errorf("%w: %s/%s", ErrLimitNotDefined, p.ID, key)
	}
	if l.err != nil {
		return l, fmt.Errorf("plan %s limit %s: %w", p.ID, key, l.err)
	}
	return l, nil
}

// Keys returns the plan's limit keys in sorted order.
func (p Plan) Keys() []Key {
	return slices.Sorted(maps.Keys(p.Limits))
}

func (p Plan) clone() Plan {
	p.Limits = maps.Clone(p.Limits)
	return p
}

// compile validates a definition and parses every limit once.
func compile(def Definition) (Plan, []error) {
	var problems []error
	if def.ID == "" {
		return Plan{}, []error{errors.Join(ErrInvalidPlan, errors.New("plan id is empty"))}
	}
	if def.Name == "" {
		problems = append(problems, errors.Join(ErrInvalidPlan, fmt.Errorf("plan %s has no name", def.ID)))
	}
	if !def.BillingCycle.Valid() {
		problems = append(problems, errors.Join(ErrInvalidPlan, fmt.Errorf("plan %s has invalid billing cycle %q", def.ID, def.BillingCycle)))
	}
	if def.Price.IsNegative() {
		problems = append(problems, errors.Join(ErrInvalidPlan, fmt.Errorf("plan %s has negative price", def.ID)))
	}

	plan := Plan{
		ID:           def.ID,
		Name:         def.Name,
		Description:  def.Description,
		Price:        def.Price,
		Currency:     def.Currency,
		BillingCycle: def.BillingCycle,
		Public:       def.Public,
		Limits:       make(map[Key]Limit, len(def.Limits)),
	}

	for _, ld := range def.Limits {
		if _, dup := plan.Limits[ld.Key]; dup {
			problems = append(problems, errors.Join(ErrInvalidPlan, fmt.Errorf("plan %s defines limit %s twice", def.ID, ld.Key)))
			continue
		}
		limit := Limit{Key: ld.Key, Type: ld.DataType, Raw: ld.Value}
		v, err := ParseValue(ld.Value, ld.DataType)
		if err != nil {
			limit.err = err
			problems = append(problems, fmt.Errorf("plan %s limit %s: %w", def.ID, ld.Key, err))
		} else {
			limit.Value = v
		}
		plan.Limits[ld.Key] = limit
	}

	return plan, problems
}
