package scenarios

import (
	"conformance/internal/await"
	"conformance/internal/ingress"
	"conformance/internal/testing"
)

// eventually returns the polling options of t's configuration for a
// condition called description. Request timeouts are retried.
func eventually(t *testing.T, description string) []await.Option {
	cfg := t.Config()
	return []await.Option{
		await.WithInterval(cfg.AwaitInterval),
		await.WithTimeout(cfg.AwaitTimeout),
		await.IgnoringIs(ingress.ErrRequestTimeout),
		await.Described(description),
	}
}
