package rules

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewRegistry(rules ...Rule) (*Registry, error) {
	reg := &Registry{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		if err := reg.Register(rule); err != nil {
			return nil, err
		}
	}
	if len(reg.rules) == 0 {
		return nil, fmt.Errorf("at least one rule must be provided")
	}
	return reg, nil
}

func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if rule.Name() == "" {
		return fmt.Errorf("rule name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.Name()]; exists {
		return fmt.Errorf("rule %q is already registered", rule.Name())
	}
	r.rules[rule.Name()] = rule
	return nil
}

func (r *Registry) Get(name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[name]
	return rule, ok
}

// Rules returns the registered rules ordered by name.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		res = append(res, rule)
	}
	slices.SortFunc(res, func(a, b Rule) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return res
}
