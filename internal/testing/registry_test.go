package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*T) {}

func sampleRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.AddClass(TestClass{
		Name: "State",
		Tags: []string{"state"},
		Methods: []TestCase{
			{Name: "add", Fn: noop},
			{Name: "addSuspending", Tags: []string{TagAlwaysSuspending}, Fn: noop},
		},
	}))
	require.NoError(t, r.AddClass(TestClass{
		Name: "Upgrade",
		Tags: []string{"upgrade", "slow"},
		Methods: []TestCase{
			{Name: "executesNewInvocationWithLatestVersion", Fn: noop},
		},
	}))
	return r
}

func names(classes []TestClass) map[string][]string {
	out := map[string][]string{}
	for _, c := range classes {
		for _, m := range c.Methods {
			out[c.Name] = append(out[c.Name], m.Name)
		}
	}
	return out
}

func TestRegistry_AddClassValidation(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		class TestClass
		want  error
	}{
		{"no name", TestClass{Methods: []TestCase{{Name: "a", Fn: noop}}}, ErrInvalidClass},
		{"no methods", TestClass{Name: "Empty"}, ErrInvalidClass},
		{"unnamed method", TestClass{Name: "X", Methods: []TestCase{{Fn: noop}}}, ErrInvalidClass},
		{"duplicate method", TestClass{Name: "X", Methods: []TestCase{{Name: "a", Fn: noop}, {Name: "a", Fn: noop}}}, ErrInvalidClass},
		{"no body", TestClass{Name: "X", Methods: []TestCase{{Name: "a"}}}, ErrInvalidClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.AddClass(tt.class), tt.want)
		})
	}

	require.NoError(t, r.AddClass(TestClass{Name: "X", Methods: []TestCase{{Name: "a", Fn: noop}}}))
	assert.ErrorIs(t, r.AddClass(TestClass{Name: "X", Methods: []TestCase{{Name: "b", Fn: noop}}}), ErrDuplicateClass)
	assert.Panics(t, func() { r.MustAddClass(TestClass{Name: "X", Methods: []TestCase{{Name: "b", Fn: noop}}}) })
}

func TestRegistry_ClassesAreCopies(t *testing.T) {
	r := sampleRegistry(t)

	classes := r.Classes()
	classes[0].Tags[0] = "mutated"
	classes[0].Methods[0].Name = "mutated"

	again := r.Classes()
	assert.Equal(t, "state", again[0].Tags[0])
	assert.Equal(t, "add", again[0].Methods[0].Name)
}

func TestRegistry_Resolve(t *testing.T) {
	r := sampleRegistry(t)

	tests := []struct {
		name     string
		suite    Suite
		override string
		want     map[string][]string
	}{
		{
			name:  "no filter selects everything in order",
			suite: Suite{Name: "default"},
			want: map[string][]string{
				"State":   {"add", "addSuspending"},
				"Upgrade": {"executesNewInvocationWithLatestVersion"},
			},
		},
		{
			name:  "method tags combine with class tags",
			suite: Suite{Name: "alwaysSuspending", Tags: TagAlwaysSuspending},
			want:  map[string][]string{"State": {"addSuspending"}},
		},
		{
			name:     "override replaces the suite filter",
			suite:    Suite{Name: "alwaysSuspending", Tags: TagAlwaysSuspending},
			override: "upgrade",
			want:     map[string][]string{"Upgrade": {"executesNewInvocationWithLatestVersion"}},
		},
		{
			name:  "classes without matching methods are dropped",
			suite: Suite{Name: "fast", Tags: "!slow"},
			want:  map[string][]string{"State": {"add", "addSuspending"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classes, err := r.Resolve(tt.suite, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(classes))
		})
	}

	_, err := r.Resolve(Suite{Name: "broken", Tags: "a &"}, "")
	assert.ErrorContains(t, err, "suite broken")
}

func TestEffectiveTags(t *testing.T) {
	class := TestClass{Tags: []string{"a", "b"}}
	assert.Equal(t, []string{"a", "b", "c"}, EffectiveTags(class, TestCase{Tags: []string{"b", "c"}}))
	assert.Equal(t, []string{"a", "b"}, EffectiveTags(class, TestCase{}))
}
