// Package ready probes freshly started containers until they accept traffic.
//
// Three probes are provided: TCP dials the port, HTTP issues a GET against a
// health path and GRPC speaks the standard gRPC health protocol. Poll retries
// a probe with exponential backoff, from 10ms up to 1s between attempts, and
// gives up with a *TimeoutError once the readiness timeout elapses.
package ready
