package scenarios

import (
	"conformance/internal/deployment"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolationKey is written by every isolation class. Each class gets its own
// runtime, so none of them sees the writes of another.
const isolationKey = "isolation"

func isolationClass(name string) testing.TestClass {
	return testing.TestClass{
		Name: name,
		Tags: []string{TagIsolation},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Counter))
		},
		Methods: []testing.TestCase{
			{Name: "freshRuntime", Fn: freshRuntime},
			{Name: "parallelKeyA", Parallel: true, Fn: independentKey},
			{Name: "parallelKeyB", Parallel: true, Fn: independentKey},
		},
	}
}

func freshRuntime(t *testing.T) {
	deployments, err := t.Admin().ListDeployments(t.Context())
	require.NoError(t, err)
	assert.Len(t, deployments, 1, "only the class deployment is registered")

	resp, err := services.NewCounterClient(t.Ingress(), isolationKey).Add(t.Context(), 1)
	require.NoError(t, err)
	assert.Zero(t, resp.OldValue, "state of another class leaked into this runtime")
}

func independentKey(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
	for i := range int64(5) {
		resp, err := counter.Add(t.Context(), 1)
		require.NoError(t, err)
		assert.Equal(t, i, resp.OldValue)
	}
}
