package fakeruntime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"conformance/internal/admin"
	"conformance/internal/ingress"
	"conformance/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	rt      *Runtime
	admin   *admin.Client
	ingress *ingress.Client
}

func newHarness(t *testing.T, opts ...Option) harness {
	t.Helper()
	rt := New(opts...)
	t.Cleanup(rt.Close)
	adminURL, ingressURL := rt.Start()
	return harness{rt: rt, admin: admin.New(adminURL, nil), ingress: ingress.New(ingressURL)}
}

func versioned(endpoints map[string]Endpoint) Option {
	return WithDiscover(func(uri string) (Endpoint, error) {
		ep, ok := endpoints[uri]
		if !ok {
			return Endpoint{}, fmt.Errorf("%s unreachable", uri)
		}
		return ep, nil
	})
}

func TestRegisterDeployment(t *testing.T) {
	h := newHarness(t, versioned(map[string]Endpoint{
		"http://a:9080": {Services: []string{services.Counter}},
	}))
	ctx := context.Background()

	resp, err := h.admin.RegisterDeployment(ctx, "http://a:9080", false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, []admin.ServiceRef{{Name: services.Counter, Revision: 1}}, resp.Services)

	_, err = h.admin.RegisterDeployment(ctx, "http://a:9080", false)
	var statusErr *admin.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)

	resp, err = h.admin.RegisterDeployment(ctx, "http://a:9080", true)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Services[0].Revision)

	deployments, err := h.admin.ListDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, "http://a:9080", deployments[0].URI)
}

func TestRegisterDeployment_DiscoveryFailure(t *testing.T) {
	h := newHarness(t, versioned(nil))

	_, err := h.admin.RegisterDeployment(context.Background(), "http://missing:9080", true)

	var statusErr *admin.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestUnregisteredServiceIsNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := services.NewCounterClient(h.ingress, "k").Add(context.Background(), 1)

	var statusErr *ingress.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestInvocationsKeepTheirDeployment(t *testing.T) {
	h := newHarness(t, versioned(map[string]Endpoint{
		"http://holder:9080": {Services: []string{services.AwakeableHolder}},
		"http://v1:9080":     {Services: []string{services.UpgradeTest}, Env: map[string]string{UpgradeVersionEnv: "v1"}},
		"http://v2:9080":     {Services: []string{services.UpgradeTest}, Env: map[string]string{UpgradeVersionEnv: "v2"}},
	}))
	ctx := context.Background()
	for _, uri := range []string{"http://holder:9080", "http://v1:9080"} {
		_, err := h.admin.RegisterDeployment(ctx, uri, true)
		require.NoError(t, err)
	}

	upgrade := services.NewUpgradeTestClient(h.ingress)
	sent, err := h.ingress.Send(ctx, upgrade.Target("executeComplex"), nil, ingress.SendOptions{})
	require.NoError(t, err)

	holder := services.NewAwakeableHolderClient(h.ingress, services.UpgradeHolderKey)
	require.Eventually(t, func() bool {
		has, err := holder.HasAwakeable(ctx)
		return err == nil && has
	}, 5*time.Second, 10*time.Millisecond)

	_, err = h.admin.RegisterDeployment(ctx, "http://v2:9080", true)
	require.NoError(t, err)

	version, err := upgrade.ExecuteSimple(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", version)

	require.NoError(t, holder.Unlock(ctx, "go"))

	var original string
	require.NoError(t, h.ingress.Attach(ctx, sent.InvocationID, &original))
	assert.Equal(t, "v1", original)
}

func TestUnlockWithoutAwakeableFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.admin.RegisterDeployment(context.Background(), "http://all:9080", true)
	require.NoError(t, err)

	err = services.NewAwakeableHolderClient(h.ingress, "none").Unlock(context.Background(), "x")
	require.Error(t, err)
}

func TestIdempotencyRetentionExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.admin.RegisterDeployment(ctx, "http://all:9080", true)
	require.NoError(t, err)

	retention := 100 * time.Millisecond
	require.NoError(t, h.admin.ModifyService(ctx, services.Counter, admin.ModifyServiceRequest{IdempotencyRetention: &retention}))

	counter := services.NewCounterClient(h.ingress, services.RandomKey())
	opts := ingress.SendOptions{IdempotencyKey: "once"}

	first, err := h.ingress.Send(ctx, counter.Target("add"), 1, opts)
	require.NoError(t, err)
	require.NoError(t, h.ingress.Attach(ctx, first.InvocationID, nil))

	time.Sleep(2 * retention)

	again, err := h.ingress.Send(ctx, counter.Target("add"), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, ingress.Accepted, again.Status)
	assert.NotEqual(t, first.InvocationID, again.InvocationID)
}

func TestModifyUnknownService(t *testing.T) {
	h := newHarness(t)
	retention := time.Second

	err := h.admin.ModifyService(context.Background(), services.Counter, admin.ModifyServiceRequest{IdempotencyRetention: &retention})

	var statusErr *admin.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestKillReleasesSingleton(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.admin.RegisterDeployment(ctx, "http://all:9080", true)
	require.NoError(t, err)

	kill := services.NewKillTestClient(h.ingress, services.RandomKey())
	sent, err := h.ingress.Send(ctx, kill.StartTarget(), nil, ingress.SendOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		unlocked, err := kill.IsUnlocked(ctx)
		return err == nil && !unlocked
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.admin.TerminateInvocation(ctx, sent.InvocationID, admin.Kill))

	err = h.ingress.Attach(ctx, sent.InvocationID, nil)
	require.Error(t, err)

	unlocked, err := kill.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestCancelIsObserved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.admin.RegisterDeployment(ctx, "http://all:9080", true)
	require.NoError(t, err)

	cancelTest := services.NewCancelTestClient(h.ingress, services.RandomKey())
	sent, err := h.ingress.Send(ctx, cancelTest.StartTarget(), services.BlockOnSleep, ingress.SendOptions{})
	require.NoError(t, err)

	require.NoError(t, h.admin.TerminateInvocation(ctx, sent.InvocationID, admin.Cancel))

	require.Eventually(t, func() bool {
		ok, err := cancelTest.VerifyTest(ctx)
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTerminateUnknownInvocation(t *testing.T) {
	h := newHarness(t)

	err := h.admin.TerminateInvocation(context.Background(), "inv_missing", admin.Kill)

	var statusErr *admin.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestProxyOneWayCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.admin.RegisterDeployment(ctx, "http://all:9080", true)
	require.NoError(t, err)

	key := services.RandomKey()
	id, err := services.NewProxyClient(h.ingress).OneWayCall(ctx, services.ProxyRequest{
		ServiceName:      services.Counter,
		VirtualObjectKey: key,
		HandlerName:      "add",
		Message:          []byte("4"),
	})
	require.NoError(t, err)
	require.NoError(t, h.ingress.Attach(ctx, id, nil))

	value, err := services.NewCounterClient(h.ingress, key).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), value)
}

func TestMapObject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.admin.RegisterDeployment(ctx, "http://all:9080", true)
	require.NoError(t, err)

	m := services.NewMapObjectClient(h.ingress, services.RandomKey())
	require.NoError(t, m.Set(ctx, services.MapEntry{Key: "b", Value: "2"}))
	require.NoError(t, m.Set(ctx, services.MapEntry{Key: "a", Value: "1"}))

	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	entries, err := m.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []services.MapEntry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, entries)

	v, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestCloseFailsBlockedInvocations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.admin.RegisterDeployment(ctx, "http://all:9080", true)
	require.NoError(t, err)

	sent, err := h.ingress.Send(ctx, services.NewKillTestClient(h.ingress, "k").StartTarget(), nil, ingress.SendOptions{})
	require.NoError(t, err)

	h.rt.mu.Lock()
	inv := h.rt.invocations[sent.InvocationID]
	h.rt.mu.Unlock()
	require.NotNil(t, inv)

	h.rt.Close()
	select {
	case <-inv.done:
	case <-time.After(2 * time.Second):
		t.Fatal("invocation still blocked after Close")
	}
	assert.Equal(t, errShutdown, inv.err)
}
