package scenarios

import (
	"context"
	"errors"
	"net/http"

	"conformance/internal/admin"
	"conformance/internal/await"
	"conformance/internal/deployment"
	"conformance/internal/ingress"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func killClass() testing.TestClass {
	return testing.TestClass{
		Name: "Kill",
		Tags: []string{TagKill},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.KillTestRunner, services.KillTestSingleton))
		},
		Methods: []testing.TestCase{
			{Name: "killInvocation", Fn: killInvocation},
		},
	}
}

func killInvocation(t *testing.T) {
	kill := services.NewKillTestClient(t.Ingress(), services.RandomKey())

	sent, err := t.Ingress().Send(t.Context(), kill.StartTarget(), nil, ingress.SendOptions{})
	require.NoError(t, err)

	err = await.Until(t.Context(), func(ctx context.Context) (bool, error) {
		unlocked, err := kill.IsUnlocked(ctx)
		return !unlocked, err
	}, eventually(t, "call tree holds the singleton")...)
	require.NoError(t, err)

	require.NoError(t, t.Admin().TerminateInvocation(t.Context(), sent.InvocationID, admin.Kill))

	err = await.Until(t.Context(), kill.IsUnlocked, eventually(t, "singleton released after kill")...)
	require.NoError(t, err)

	err = t.Ingress().Attach(t.Context(), sent.InvocationID, nil)
	var statusErr *ingress.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func cancelClass() testing.TestClass {
	class := testing.TestClass{
		Name: "Cancel",
		Tags: []string{TagCancel},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.CancelTestRunner, services.CancelTestBlockingService, services.AwakeableHolder))
		},
	}
	for _, op := range []services.BlockingOperation{services.BlockOnCall, services.BlockOnSleep, services.BlockOnAwakeable} {
		class.Methods = append(class.Methods, testing.TestCase{
			Name:     "cancelBlockedOn" + string(op),
			Tags:     []string{testing.TagAlwaysSuspending},
			Parallel: true,
			Fn:       func(t *testing.T) { cancelBlockedInvocation(t, op) },
		})
	}
	return class
}

func cancelBlockedInvocation(t *testing.T, op services.BlockingOperation) {
	runner := services.NewCancelTestClient(t.Ingress(), services.RandomKey())

	sent, err := t.Ingress().Send(t.Context(), runner.StartTarget(), op, ingress.SendOptions{})
	require.NoError(t, err)

	require.NoError(t, t.Admin().TerminateInvocation(t.Context(), sent.InvocationID, admin.Cancel))

	err = await.Until(t.Context(), runner.VerifyTest, eventually(t, "runner observed its cancellation")...)
	require.NoError(t, err)

	var statusErr *ingress.StatusError
	err = t.Ingress().Attach(t.Context(), sent.InvocationID, nil)
	require.True(t, errors.As(err, &statusErr), "attach returned %v", err)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
}
