package scenarios

import (
	"context"

	"conformance/internal/await"
	"conformance/internal/deployment"
	"conformance/internal/ingress"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Spec names of the two UpgradeTest versions.
const (
	version1 = "version1"
	version2 = "version2"
)

func upgradeClass() testing.TestClass {
	return testing.TestClass{
		Name: "Upgrade",
		Tags: []string{TagUpgrade},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.AwakeableHolder))
			b.WithServiceSpec(deployment.NamedSpec(version1, services.UpgradeTest).
				WithEnv(services.UpgradeVersionEnv, "v1"))
			b.WithServiceSpec(deployment.NamedSpec(version2, services.UpgradeTest).
				WithEnv(services.UpgradeVersionEnv, "v2").
				SkipRegistration())
		},
		Methods: []testing.TestCase{
			// Registers version2, so it is the only method of the class.
			{Name: "inFlightInvocationKeepsItsVersion", Fn: upgradeMidFlight},
		},
	}
}

func upgradeMidFlight(t *testing.T) {
	upgrade := services.NewUpgradeTestClient(t.Ingress())
	holder := services.NewAwakeableHolderClient(t.Ingress(), services.UpgradeHolderKey)

	version, err := upgrade.ExecuteSimple(t.Context())
	require.NoError(t, err)
	require.Equal(t, "v1", version)

	inFlight, err := t.Ingress().Send(t.Context(), upgrade.Target("executeComplex"), nil, ingress.SendOptions{})
	require.NoError(t, err)

	err = await.Until(t.Context(), holder.HasAwakeable, eventually(t, "executeComplex holds an awakeable")...)
	require.NoError(t, err)

	require.False(t, t.Deployment().IsRegistered(version2))
	require.NoError(t, t.Deployment().Register(t.Context(), version2))

	err = await.Until(t.Context(), func(ctx context.Context) (bool, error) {
		v, err := upgrade.ExecuteSimple(ctx)
		return v == "v2", err
	}, eventually(t, "new invocations run on version2")...)
	require.NoError(t, err)

	require.NoError(t, holder.Unlock(t.Context(), "go"))

	var result string
	require.NoError(t, t.Ingress().Attach(t.Context(), inFlight.InvocationID, &result))
	assert.Equal(t, "v1", result, "the in-flight invocation finished on the version it started on")
}
