// Package fakeruntime is an in-process stand-in for the runtime under test and
// the service image, used to exercise the harness without containers.
//
// A Runtime serves the admin API (health, deployment registration, service
// patches and invocation termination) and the ingress API (calls, sends with
// delay and idempotency keys, attach and output). The test services are
// implemented in memory. Registered deployments are resolved through a
// DiscoverFunc, so a caller decides which services and environment a
// deployment URI carries; invocations are routed to the latest deployment
// hosting their service and keep it until they complete.
//
// Engine is an in-memory container engine recording the lifecycle of every
// container and network. Stack combines both: the orchestrator starts a
// deployment on the Engine and every runtime container answers through a
// Runtime of its own, so the whole harness runs in-process:
//
//	stack, err := fakeruntime.NewStack()
//	...
//	orch := orchestrator.New(orchestrator.Config{Runtime: stack.Engine})
//	rd, err := orch.Start(ctx, "State", stack.Config(), descriptor)
package fakeruntime
