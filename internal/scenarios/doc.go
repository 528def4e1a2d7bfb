// Package scenarios holds the conformance test classes run against the
// runtime under test.
//
// Every class declares the service containers it needs and a list of
// methods driving the runtime through the typed clients of the services
// package. Tests of one class share a deployment, so methods use random
// object keys unless they deliberately look at state left by an earlier
// method.
//
// Register adds the whole catalog to a registry:
//
//	registry := testing.NewRegistry()
//	if err := scenarios.Register(registry); err != nil {
//		return err
//	}
package scenarios
