package scenarios

import (
	"conformance/internal/testing"
)

// Tags of the scenario classes.
const (
	TagState       = "state"
	TagIsolation   = "isolation"
	TagIdempotency = "idempotency"
	TagUpgrade     = "upgrade"
	TagKill        = "kill"
	TagCancel      = "cancel"
	TagProxy       = "proxy"
	TagIngress     = "ingress"
	TagFailing     = "failing"
)

// Classes returns the scenario catalog in execution order.
func Classes() []testing.TestClass {
	return []testing.TestClass{
		stateClass(),
		isolationClass("IsolationFirst"),
		isolationClass("IsolationSecond"),
		idempotencyClass(),
		upgradeClass(),
		killClass(),
		cancelClass(),
		proxyClass(),
		ingressClass(),
		failingClass(),
	}
}

// Register adds every scenario class to registry.
func Register(registry *testing.Registry) error {
	for _, class := range Classes() {
		if err := registry.AddClass(class); err != nil {
			return err
		}
	}
	return nil
}
