// Package testing is the test-suite execution engine of the conformance
// harness.
//
// # Architecture Overview
//
//	                ┌──────────────────┐
//	                │ conformance run  │ (CLI Command)
//	                │   (cmd/run.go)   │
//	                └────────┬─────────┘
//	                         │ one SuiteConfig per suite
//	                ┌────────▼─────────┐
//	                │      Runner      │ (worker pool over classes)
//	                └────────┬─────────┘
//	                         │
//	        ┌────────────────┼─────────────────┐
//	        │                │                 │
//	┌───────▼──────┐ ┌───────▼───────┐ ┌───────▼───────┐
//	│   Registry   │ │classLifecycle │ │ TestReporter  │
//	│ + TagFilter  │ │  (Deployer)   │ │ console, xml, │
//	└──────────────┘ └───────────────┘ │ json, metrics │
//	                                   └───────────────┘
//
// # Core Components
//
// ## Registry and TagFilter
//
// Tests are plain functions grouped into a TestClass. A class declares the
// deployment it needs through a deployment.Builder callback and is added to a
// Registry. A test's effective tags are its class tags plus its own tags;
// TagFilter expressions select on them:
//
//	always-suspending,lazy-state     either tag
//	state & !slow                    state but not slow
//	!(upgrade | kill)                neither
//
// ## Runner
//
// Runner.Run executes one Suite:
//   - the classes matching the tag expression run on a pool of
//     SuiteConfig.Parallel workers;
//   - each class gets its own deployment, started before its first method and
//     stopped after its last (classLifecycle);
//   - sequential methods run in declaration order, then methods marked
//     Parallel run concurrently;
//   - a class setup error aborts every method of the class without running it;
//   - SuiteConfig.Timeout cancels running tests and aborts the ones not
//     started, teardown still runs;
//   - SuiteConfig.FailFast skips the classes not yet started after the first
//     failure.
//
// The suite's Env is applied on top of the runtime env of a copy of the
// base configuration. Retained deployments (config RetainAfterEnd) have no
// class timeout and are never stopped.
//
// ## T
//
// Every method receives a *T carrying the clients of the class deployment.
// T satisfies testify's require.TestingT, so require and assert work as in
// regular Go tests. FailNow and Skipf end the method; a panic fails it.
//
// ## Reporting
//
// A TestReporter receives every lifecycle event. OpenSuiteOutput creates
// <report-dir>/<suite>/ and assembles a MultiReporter writing:
//   - testrunner.stdout: the console output (optionally echoed to stdout)
//   - testrunner.stderr: errors and container logs of aborted classes
//   - testrunner.log: structured log lines stamped with test=<class>/<method>
//   - report.xml: JUnit XML, one testsuite per class
//   - report.json: the complete SuiteResult
//   - metrics.prom: Prometheus text format
//
// ## Suites
//
// DefaultSuites is the built-in catalog; LoadSuites reads one from YAML.
//
// ## Cleanup
//
// CleanupStaleResources removes containers and networks labelled by earlier
// runs, for example retained deployments.
package testing
