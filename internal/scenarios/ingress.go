package scenarios

import (
	"context"
	"errors"
	"net/http"
	"time"

	"conformance/internal/await"
	"conformance/internal/deployment"
	"conformance/internal/ingress"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingressClass() testing.TestClass {
	return testing.TestClass{
		Name: "Ingress",
		Tags: []string{TagIngress},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Counter))
		},
		Methods: []testing.TestCase{
			{Name: "attachToSentInvocation", Fn: attachToSent},
			{Name: "outputOfDelayedInvocation", Fn: outputOfDelayed},
			{Name: "unknownHandler", Fn: unknownHandler},
		},
	}
}

func attachToSent(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())

	sent, err := t.Ingress().Send(t.Context(), counter.Target("add"), 3, ingress.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, ingress.Accepted, sent.Status)

	var resp services.CounterUpdateResponse
	require.NoError(t, t.Ingress().Attach(t.Context(), sent.InvocationID, &resp))
	assert.Equal(t, services.CounterUpdateResponse{OldValue: 0, NewValue: 3}, resp)
}

func outputOfDelayed(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())

	sent, err := t.Ingress().Send(t.Context(), counter.Target("add"), 1, ingress.SendOptions{Delay: time.Second})
	require.NoError(t, err)

	var resp services.CounterUpdateResponse
	ready, err := t.Ingress().Output(t.Context(), sent.InvocationID, &resp)
	require.NoError(t, err)
	assert.False(t, ready, "a delayed invocation has no output yet")

	err = await.Until(t.Context(), func(ctx context.Context) (bool, error) {
		return t.Ingress().Output(ctx, sent.InvocationID, &resp)
	}, eventually(t, "delayed invocation completed")...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.NewValue)
}

func unknownHandler(t *testing.T) {
	target := ingress.Target{Service: services.Counter, Key: services.RandomKey(), Handler: "doesNotExist"}
	err := t.Ingress().Call(t.Context(), target, nil, nil)

	var statusErr *ingress.StatusError
	require.True(t, errors.As(err, &statusErr), "call returned %v", err)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
