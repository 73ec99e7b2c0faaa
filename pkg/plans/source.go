package plans

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Source delivers plan definitions to the catalog.
type Source interface {
	Load(ctx context.Context) ([]Definition, error)
}

type inMemSource struct {
	mu   sync.RWMutex
	defs []Definition
}

// NewInMemSource returns a Source holding a deep copy of defs.
func NewInMemSource(defs ...Definition) Source {
	return &inMemSource{defs: cloneDefinitions(defs)}
}

func (s *inMemSource) Load(ctx context.Context) ([]Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDefinitions(s.defs), nil
}

func cloneDefinitions(defs []Definition) []Definition {
	out := make([]Definition, len(defs))
	for i, d := range defs {
		d.Limits = slices.Clone(d.Limits)
		out[i] = d
	}
	return out
}

// yamlFile is the on-disk layout of a plan catalog.
//
//	plans:
//	  - id: basic
//	    name: Basic
//	    price: "29.00"
//	    currency: USD
//	    billing_cycle: monthly
//	    limits:
//	      - {key: max_branches, value: "2", data_type: number}
type yamlFile struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description"`
	Price        string      `yaml:"price"`
	Currency     string      `yaml:"currency"`
	BillingCycle string      `yaml:"billing_cycle"`
	Public       bool        `yaml:"public"`
	Limits       []yamlLimit `yaml:"limits"`
}

type yamlLimit struct {
	Key      string `yaml:"key"`
	Value    string `yaml:"value"`
	DataType string `yaml:"data_type"`
}

type yamlSource struct {
	path string
	data []byte
}

// NewYAMLSource returns a Source that reads plan definitions from a YAML file on each Load.
func NewYAMLSource(path string) Source {
	return &yamlSource{path: path}
}

// NewYAMLSourceFromBytes returns a Source backed by an in-memory YAML document.
func NewYAMLSourceFromBytes(data []byte) Source {
	return &yamlSource{data: slices.Clone(data)}
}

func (s *yamlSource) Load(ctx context.Context) ([]Definition, error) {
	data := s.data
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		data = b
	}

	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	defs := make([]Definition, 0, len(file.Plans))
	for _, p := range file.Plans {
		price := decimal.Zero
		if p.Price != "" {
			d, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("plan %s price %q: %w", p.ID, p.Price, err))
			}
			price = d
		}
		def := Definition{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			Price:        price,
			Currency:     p.Currency,
			BillingCycle: BillingCycle(p.BillingCycle),
			Public:       p.Public,
			Limits:       make([]LimitDefinition, 0, len(p.Limits)),
		}
		for _, l := range p.Limits {
			def.Limits = append(def.Limits, LimitDefinition{
				Key:      Key(l.Key),
				Value:    l.Value,
				DataType: DataType(l.DataType),
			})
		}
		defs = append(defs, def)
	}
	return defs, nil
}
