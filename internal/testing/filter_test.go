package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagFilter_Match(t *testing.T) {
	tests := []struct {
		name string
		expr string
		tags []string
		want bool
	}{
		{"empty matches all", "", []string{"x"}, true},
		{"empty matches untagged", "  ", nil, true},
		{"single tag", "state", []string{"state"}, true},
		{"single tag missing", "state", []string{"upgrade"}, false},
		{"comma is or", "a,b", []string{"b"}, true},
		{"pipe is or", "a | b", []string{"c"}, false},
		{"and", "a & b", []string{"a", "b"}, true},
		{"and missing one", "a & b", []string{"a"}, false},
		{"not", "!slow", []string{"fast"}, true},
		{"not on untagged", "!slow", nil, true},
		{"not excluded", "!slow", []string{"slow"}, false},
		{"and binds tighter than or", "a | b & c", []string{"a"}, true},
		{"and binds tighter than or, right side", "a | b & c", []string{"b"}, false},
		{"parentheses", "(a | b) & c", []string{"b", "c"}, true},
		{"parentheses missing and", "(a | b) & c", []string{"b"}, false},
		{"double negation", "!!a", []string{"a"}, true},
		{"negated group", "!(upgrade | kill)", []string{"kill"}, false},
		{"tag characters", "always-suspending,lazy_state.v2", []string{"lazy_state.v2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseTagFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.tags))
			assert.Equal(t, tt.expr, f.String())
		})
	}
}

func TestParseTagFilter_Errors(t *testing.T) {
	for _, expr := range []string{
		"a &",
		"| a",
		"(a | b",
		"a b",
		"a)",
		"!",
		"a # b",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseTagFilter(expr)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "invalid tag expression")
		})
	}
}
