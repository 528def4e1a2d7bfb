package testing

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrDuplicateClass is returned when two classes share a name.
	ErrDuplicateClass = errors.New("duplicate test class")
	// ErrInvalidClass is returned for classes that cannot be run.
	ErrInvalidClass = errors.New("invalid test class")
)

// Registry holds every known test class in registration order.
type Registry struct {
	mu      sync.RWMutex
	classes []TestClass
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddClass registers class.
func (r *Registry) AddClass(class TestClass) error {
	if err := validateClass(class); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.classes, func(c TestClass) bool { return c.Name == class.Name }) {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, class.Name)
	}
	r.classes = append(r.classes, cloneClass(class))
	return nil
}

// MustAddClass is like AddClass but panics on error.
func (r *Registry) MustAddClass(class TestClass) {
	if err := r.AddClass(class); err != nil {
		panic(err)
	}
}

// Classes returns every registered class.
func (r *Registry) Classes() []TestClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TestClass, len(r.classes))
	for i, c := range r.classes {
		out[i] = cloneClass(c)
	}
	return out
}

// Select returns the classes of a suite run: every class keeping only the
// methods whose effective tags match filter. Classes without a matching
// method are dropped.
func (r *Registry) Select(filter TagFilter) []TestClass {
	var out []TestClass
	for _, class := range r.Classes() {
		var methods []TestCase
		for _, m := range class.Methods {
			if filter.Match(EffectiveTags(class, m)) {
				methods = append(methods, m)
			}
		}
		if len(methods) == 0 {
			continue
		}
		class.Methods = methods
		out = append(out, class)
	}
	return out
}

// Resolve returns the classes of suite, applying the override tag
// expression instead of the suite's own filter when it is set.
func (r *Registry) Resolve(suite Suite, override string) ([]TestClass, error) {
	expr := suite.Tags
	if override != "" {
		expr = override
	}
	filter, err := ParseTagFilter(expr)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", suite.Name, err)
	}
	return r.Select(filter), nil
}

// EffectiveTags returns the class tags followed by the method tags.
func EffectiveTags(class TestClass, method TestCase) []string {
	tags := slices.Clone(class.Tags)
	for _, t := range method.Tags {
		if !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	return tags
}

func validateClass(class TestClass) error {
	if strings.TrimSpace(class.Name) == "" {
		return fmt.Errorf("%w: class without a name", ErrInvalidClass)
	}
	if len(class.Methods) == 0 {
		return fmt.Errorf("%w: %s has no test methods", ErrInvalidClass, class.Name)
	}
	seen := make(map[string]bool, len(class.Methods))
	for _, m := range class.Methods {
		switch {
		case strings.TrimSpace(m.Name) == "":
			return fmt.Errorf("%w: %s has a method without a name", ErrInvalidClass, class.Name)
		case seen[m.Name]:
			return fmt.Errorf("%w: %s declares %s twice", ErrInvalidClass, class.Name, m.Name)
		case m.Fn == nil:
			return fmt.Errorf("%w: %s/%s has no body", ErrInvalidClass, class.Name, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

func cloneClass(c TestClass) TestClass {
	out := c
	out.Tags = slices.Clone(c.Tags)
	out.Methods = make([]TestCase, len(c.Methods))
	for i, m := range c.Methods {
		m.Tags = slices.Clone(m.Tags)
		out.Methods[i] = m
	}
	return out
}
