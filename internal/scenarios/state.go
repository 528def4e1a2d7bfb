package scenarios

import (
	"slices"

	"conformance/internal/deployment"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func stateClass() testing.TestClass {
	return testing.TestClass{
		Name: "State",
		Tags: []string{TagState, testing.TagLazyState},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Counter, services.MapObject))
		},
		Methods: []testing.TestCase{
			{Name: "add", Fn: counterAdd},
			{Name: "getAfterReset", Fn: counterGetAfterReset},
			{Name: "listStateAndClearAll", Fn: mapListAndClearAll},
			{Name: "concurrentAddsAreSerialized", Tags: []string{testing.TagAlwaysSuspending}, Parallel: true, Fn: concurrentAdds},
		},
	}
}

func counterAdd(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), "add")

	resp, err := counter.Add(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, services.CounterUpdateResponse{OldValue: 0, NewValue: 1}, resp)

	resp, err = counter.Add(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, services.CounterUpdateResponse{OldValue: 1, NewValue: 3}, resp)
}

func counterGetAfterReset(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())

	_, err := counter.Add(t.Context(), 5)
	require.NoError(t, err)
	value, err := counter.Get(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(5), value)

	require.NoError(t, counter.Reset(t.Context()))
	value, err = counter.Get(t.Context())
	require.NoError(t, err)
	assert.Zero(t, value)
}

func mapListAndClearAll(t *testing.T) {
	m := services.NewMapObjectClient(t.Ingress(), services.RandomKey())

	for _, e := range []services.MapEntry{{Key: "my-key-0", Value: "my-value-0"}, {Key: "my-key-1", Value: "my-value-1"}} {
		require.NoError(t, m.Set(t.Context(), e))
	}
	value, err := m.Get(t.Context(), "my-key-1")
	require.NoError(t, err)
	assert.Equal(t, "my-value-1", value)

	entries, err := m.ClearAll(t.Context())
	require.NoError(t, err)
	assert.ElementsMatch(t, []services.MapEntry{
		{Key: "my-key-0", Value: "my-value-0"},
		{Key: "my-key-1", Value: "my-value-1"},
	}, entries)

	value, err = m.Get(t.Context(), "my-key-0")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func concurrentAdds(t *testing.T) {
	const n = 10
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())

	olds := make([]int64, n)
	g, ctx := errgroup.WithContext(t.Context())
	for i := range n {
		g.Go(func() error {
			resp, err := counter.Add(ctx, 1)
			olds[i] = resp.OldValue
			return err
		})
	}
	require.NoError(t, g.Wait())

	slices.Sort(olds)
	for i, old := range olds {
		assert.Equal(t, int64(i), old, "every add observes the previous one")
	}
	value, err := counter.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(n), value)
}
