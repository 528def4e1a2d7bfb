// Package orchestrator deploys the runtime under test together with the
// service containers a test class needs, and removes them afterwards.
//
// # Start
//
// Start brings a deployment.Descriptor to life in a fixed order:
//
//  1. A bridge network, labelled with the run ID and the test class
//  2. The runtime container, with GlobalConfig's runtime env overlaid by the
//     descriptor's runtime env
//  3. Readiness of the runtime: HTTP GET /health on the admin port, a TCP
//     probe of the ingress port and, when configured, a gRPC health probe of
//     the node port
//  4. One container per ServiceSpec, started concurrently unless the
//     descriptor disables it
//  5. Readiness of each service container (TCP, or HTTP when a health path
//     is declared), followed by its registration with the admin API unless
//     the ServiceSpec was built with SkipRegistration
//
// Every probe is bounded by ReadinessTimeout and fails with a
// *ready.TimeoutError. Ports are looked up through a PortView, which only
// exposes the ports declared for a container.
//
// # Stop
//
// Stop removes service containers in reverse declaration order, then the
// runtime container, then the network. It is idempotent and cleans up after
// a partial Start. Retained deployments are left running and the shell
// command removing them is logged.
//
// Each created resource also gets a "docker rm -f" registered with
// run/onexit, which fires only if the harness dies before Stop.
//
// # Naming
//
// Containers and networks are named <run-id>-<class>-<uuid8> and carry the
// conformance.run, conformance.class and conformance.role labels, so leftovers
// of a crashed run can be found and removed.
package orchestrator
