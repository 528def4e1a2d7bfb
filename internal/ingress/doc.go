// Package ingress is a client for the invocation API of the runtime under test.
//
// It supports request-response calls, one-way sends (optionally idempotent),
// attaching to a running invocation and fetching an invocation's output
// without blocking. Invocations are addressed either by invocation id or by
// their target plus idempotency key.
//
// Requests are bounded by WithRequestTimeout. When that bound fires the call
// fails with ErrRequestTimeout, which polling code can treat as transient.
package ingress
