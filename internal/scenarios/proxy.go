package scenarios

import (
	"encoding/json"
	"time"

	"conformance/internal/await"
	"conformance/internal/deployment"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proxyClass() testing.TestClass {
	return testing.TestClass{
		Name: "Proxy",
		Tags: []string{TagProxy},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Proxy))
			b.WithServiceSpec(deployment.NamedSpec("counter", services.Counter))
		},
		Methods: []testing.TestCase{
			{Name: "callReturnsResult", Fn: proxyCall},
			{Name: "oneWayCallsAreDelivered", Fn: proxyOneWayCalls},
			{Name: "delayedOneWayCall", Tags: []string{testing.TagAlwaysSuspending}, Fn: proxyDelayedCall},
		},
	}
}

func addRequest(t *testing.T, key string, delta int64) services.ProxyRequest {
	msg, err := json.Marshal(delta)
	require.NoError(t, err)
	return services.ProxyRequest{
		ServiceName:      services.Counter,
		VirtualObjectKey: key,
		HandlerName:      "add",
		Message:          msg,
	}
}

func proxyCall(t *testing.T) {
	key := services.RandomKey()

	raw, err := services.NewProxyClient(t.Ingress()).Call(t.Context(), addRequest(t, key, 4))
	require.NoError(t, err)

	var resp services.CounterUpdateResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, services.CounterUpdateResponse{OldValue: 0, NewValue: 4}, resp)
}

func proxyOneWayCalls(t *testing.T) {
	const calls = 10
	key := services.RandomKey()
	proxy := services.NewProxyClient(t.Ingress())

	ids := map[string]bool{}
	for range calls {
		id, err := proxy.OneWayCall(t.Context(), addRequest(t, key, 1))
		require.NoError(t, err)
		ids[id] = true
	}
	assert.Len(t, ids, calls, "every one-way call is a separate invocation")

	counter := services.NewCounterClient(t.Ingress(), key)
	err := await.UntilAsserted(t.Context(), func(c *await.C) {
		value, err := counter.Get(c.Context())
		if !c.Check(err) {
			return
		}
		assert.Equal(c, int64(calls), value)
	}, eventually(t, "all one-way calls applied")...)
	require.NoError(t, err)
}

func proxyDelayedCall(t *testing.T) {
	key := services.RandomKey()
	req := addRequest(t, key, 1)
	req.DelayMillis = 500

	start := time.Now()
	_, err := services.NewProxyClient(t.Ingress()).OneWayCall(t.Context(), req)
	require.NoError(t, err)

	counter := services.NewCounterClient(t.Ingress(), key)
	var applied time.Time
	err = await.UntilAsserted(t.Context(), func(c *await.C) {
		value, err := counter.Get(c.Context())
		if !c.Check(err) {
			return
		}
		require.Equal(c, int64(1), value)
		applied = time.Now()
	}, eventually(t, "delayed call applied")...)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, applied.Sub(start), 500*time.Millisecond)
}
