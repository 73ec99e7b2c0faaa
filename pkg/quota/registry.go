package quota

import (
	"fmt"

	"github.com/dmitrymomot/restokit/pkg/plans"
)

// CounterRegistry maps a limit key to the Counter that measures it.
// Not thread-safe: register all counters at startup only.
type CounterRegistry map[plans.Key]Counter

// NewRegistry returns a new, empty CounterRegistry.
func NewRegistry() CounterRegistry {
	return make(CounterRegistry)
}

// Register sets the Counter for key. Panics if fn is nil.
func (r CounterRegistry) Register(key plans.Key, fn Counter) {
	if fn == nil {
		panic(fmt.Sprintf("quota: counter for key %q cannot be nil", key))
	}
	r[key] = fn
}
