// Package deployment describes what a test class needs deployed.
//
// A Descriptor lists the service deployments (ServiceSpec) to start next to
// the runtime, together with options that apply to the whole deployment:
//
//	desc, err := deployment.Build(func(b *deployment.Builder) {
//		b.WithServiceSpec(deployment.DefaultSpec(services.AwakeableHolder))
//		b.WithServiceSpec(deployment.NamedSpec("version1", services.UpgradeTest).
//			WithEnv("E2E_UPGRADETEST_VERSION", "v1"))
//		b.WithServiceSpec(deployment.NamedSpec("version2", services.UpgradeTest).
//			WithEnv("E2E_UPGRADETEST_VERSION", "v2").
//			SkipRegistration())
//	})
//
// Descriptors are validated when built: spec names are unique and every
// hosted service is known to the services package. Once built a Descriptor
// cannot be changed; every accessor returns a copy.
package deployment
