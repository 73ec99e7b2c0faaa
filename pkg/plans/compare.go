package plans

import "github.com/shopspring/decimal"

// Comparison contains the differences between two plans.
type Comparison struct {
	// Capabilities switched on in the target plan
	GainedCapabilities []Key
	// Capabilities switched off in the target plan
	LostCapabilities []Key
	// Numeric limits raised (old -> new)
	IncreasedLimits map[Key]Change
	// Numeric limits lowered (old -> new)
	DecreasedLimits map[Key]Change
	// Limits only the target plan defines
	NewLimits map[Key]Value
	// Limits only the current plan defines
	RemovedLimits map[Key]Value
}

// Change represents a change in a numeric limit.
type Change struct {
	From decimal.Decimal `json:"from"`
	To   decimal.Decimal `json:"to"`
}

// HasDecreases reports whether moving to the target plan takes anything away.
func (c *Comparison) HasDecreases() bool {
	return len(c.DecreasedLimits) > 0 || len(c.RemovedLimits) > 0 || len(c.LostCapabilities) > 0
}

// ComparePlans returns the differences between current and target plans.
// Malformed limits on either side are skipped.
func ComparePlans(current, target *Plan) *Comparison {
	if current == nil || target == nil {
		return nil
	}

	cmp := &Comparison{
		GainedCapabilities: make([]Key, 0),
		LostCapabilities:   make([]Key, 0),
		IncreasedLimits:    make(map[Key]Change),
		DecreasedLimits:    make(map[Key]Change),
		NewLimits:          make(map[Key]Value),
		RemovedLimits:      make(map[Key]Value),
	}

	for _, key := range target.Keys() {
		tl := target.Limits[key]
		if tl.err != nil {
			continue
		}
		cl, exists := current.Limits[key]
		if !exists || cl.err != nil {
			cmp.NewLimits[key] = tl.Value
			if on, ok := tl.Value.Bool(); ok && on {
				cmp.GainedCapabilities = append(cmp.GainedCapabilities, key)
			}
			continue
		}

		switch tl.Type {
		case TypeBoolean:
			from, _ := cl.Value.Bool()
			to, ok := tl.Value.Bool()
			if !ok {
				continue
			}
			if to && !from {
				cmp.GainedCapabilities = append(cmp.GainedCapabilities, key)
			} else if from && !to {
				cmp.LostCapabilities = append(cmp.LostCapabilities, key)
			}
		case TypeNumber:
			from, okFrom := cl.Value.Number()
			to, okTo := tl.Value.Number()
			if !okFrom || !okTo || from.Equal(to) {
				continue
			}
			change := Change{From: from, To: to}
			switch {
			case cl.Value.IsUnlimited():
				cmp.DecreasedLimits[key] = change
			case tl.Value.IsUnlimited():
				cmp.IncreasedLimits[key] = change
			case to.GreaterThan(from):
				cmp.IncreasedLimits[key] = change
			default:
				cmp.DecreasedLimits[key] = change
			}
		}
	}

	for _, key := range current.Keys() {
		cl := current.Limits[key]
		if cl.err != nil {
			continue
		}
		if _, exists := target.Limits[key]; !exists {
			cmp.RemovedLimits[key] = cl.Value
			if on, ok := cl.Value.Bool(); ok && on {
				cmp.LostCapabilities = append(cmp.LostCapabilities, key)
			}
		}
	}

	return cmp
}
