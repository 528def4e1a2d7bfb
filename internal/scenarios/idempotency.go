package scenarios

import (
	"context"
	"time"

	"conformance/internal/admin"
	"conformance/internal/await"
	"conformance/internal/deployment"
	"conformance/internal/ingress"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idempotencyClass() testing.TestClass {
	return testing.TestClass{
		Name: "Idempotency",
		Tags: []string{TagIdempotency},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Counter))
		},
		Methods: []testing.TestCase{
			{Name: "idempotentSend", Fn: idempotentSend},
			{Name: "idempotentCall", Fn: idempotentCall},
			{Name: "attachIdempotent", Tags: []string{testing.TagAlwaysSuspending}, Fn: attachIdempotent},
			// Changes the retention of Counter for the rest of the class.
			{Name: "retentionExpires", Fn: retentionExpires},
		},
	}
}

func idempotentSend(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
	opts := ingress.SendOptions{IdempotencyKey: uuid.NewString()}

	first, err := t.Ingress().Send(t.Context(), counter.Target("add"), 2, opts)
	require.NoError(t, err)
	assert.Equal(t, ingress.Accepted, first.Status)

	second, err := t.Ingress().Send(t.Context(), counter.Target("add"), 2, opts)
	require.NoError(t, err)
	assert.Equal(t, ingress.PreviouslyAccepted, second.Status)
	assert.Equal(t, first.InvocationID, second.InvocationID)

	err = await.UntilAsserted(t.Context(), func(c *await.C) {
		value, err := counter.Get(c.Context())
		if !c.Check(err) {
			return
		}
		assert.Equal(c, int64(2), value)
	}, eventually(t, "counter incremented once")...)
	require.NoError(t, err)

	// The value must stay at 2 once the invocation completed.
	var resp services.CounterUpdateResponse
	require.NoError(t, t.Ingress().Attach(t.Context(), first.InvocationID, &resp))
	assert.Equal(t, services.CounterUpdateResponse{OldValue: 0, NewValue: 2}, resp)

	third, err := t.Ingress().Send(t.Context(), counter.Target("add"), 2, opts)
	require.NoError(t, err)
	assert.Equal(t, ingress.PreviouslyAccepted, third.Status)
	assert.Equal(t, first.InvocationID, third.InvocationID)

	value, err := counter.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), value, "idempotent send executed more than once")
}

func idempotentCall(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
	key := uuid.NewString()

	var first, second services.CounterUpdateResponse
	require.NoError(t, t.Ingress().CallIdempotent(t.Context(), counter.Target("add"), key, 3, &first))
	require.NoError(t, t.Ingress().CallIdempotent(t.Context(), counter.Target("add"), key, 3, &second))
	assert.Equal(t, first, second, "the second call returns the stored response")

	value, err := counter.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
}

func attachIdempotent(t *testing.T) {
	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
	key := uuid.NewString()

	_, err := t.Ingress().Send(t.Context(), counter.Target("add"), 7, ingress.SendOptions{IdempotencyKey: key})
	require.NoError(t, err)

	var resp services.CounterUpdateResponse
	require.NoError(t, t.Ingress().AttachIdempotent(t.Context(), counter.Target("add"), key, &resp))
	assert.Equal(t, services.CounterUpdateResponse{OldValue: 0, NewValue: 7}, resp)

	var output services.CounterUpdateResponse
	ready, err := t.Ingress().OutputIdempotent(t.Context(), counter.Target("add"), key, &output)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, resp, output)
}

func retentionExpires(t *testing.T) {
	retention := time.Second
	require.NoError(t, t.Admin().ModifyService(t.Context(), services.Counter, admin.ModifyServiceRequest{IdempotencyRetention: &retention}))

	counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
	opts := ingress.SendOptions{IdempotencyKey: uuid.NewString()}

	first, err := t.Ingress().Send(t.Context(), counter.Target("add"), 1, opts)
	require.NoError(t, err)
	var resp services.CounterUpdateResponse
	require.NoError(t, t.Ingress().Attach(t.Context(), first.InvocationID, &resp))

	// Once the record expired the same key starts a new invocation.
	err = await.Until(t.Context(), func(ctx context.Context) (bool, error) {
		again, err := t.Ingress().Send(ctx, counter.Target("add"), 1, opts)
		if err != nil {
			return false, err
		}
		return again.Status == ingress.Accepted && again.InvocationID != first.InvocationID, nil
	}, append(eventually(t, "idempotency record expired"), await.WithInterval(200*time.Millisecond))...)
	require.NoError(t, err)
}
